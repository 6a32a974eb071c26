package global

import (
	"fmt"
	"os"
	"strings"
	"time"

	"PNotepad/tools"
	"PNotepad/tools/errs"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

const envPrefix = "PNOTEPAD_"

// Global is the active configuration; main replaces it with the loaded one.
var Global = Default()

func Default() AppConfig {
	return AppConfig{
		NodeType: NodeTypeSyncGateway,
		NodeId:   "notepad-gw-1",
		HttpAddr: ":8080",
		GrpcAddr: ":50052",
		Log:      LogConfig{Level: "info"},
		Auth:     AuthConfig{Alg: "HS256"},
		Store: StoreConfig{
			BaseURL:    "http://127.0.0.1:8090",
			Timeout:    5 * time.Second,
			MaxRetries: 3,
		},
		Session: SessionConfig{
			HeartbeatTimeout: 30 * time.Second,
			SendQueue:        256,
			WriteWait:        10 * time.Second,
			MaxMessageBytes:  1 << 20,
		},
		Redis: RedisConfig{PresenceTTL: 90 * time.Second},
		Nats: NatsConfig{
			Name:          "notepad-gw",
			SubjectPrefix: "notepad",
		},
		Kafka: KafkaConfig{
			Topic:       "notepad.edits",
			Compression: "snappy",
		},
		Events:         EventsConfig{Queue: 4096, Workers: 4},
		WorkspaceStore: WorkspaceStoreConfig{Driver: "memory", SqlitePath: "data/workspace.db", MongoDatabase: "notepad"},
	}
}

// Load builds the configuration: defaults, then the optional YAML file, then
// PNOTEPAD_* environment overrides.
func Load(path string) (AppConfig, error) {
	cfg := Default()
	if path != "" {
		if err := mergeFile(&cfg, path); err != nil {
			return cfg, err
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func mergeFile(cfg *AppConfig, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return errs.WrapMsg(err, "read config", "path", path)
	}
	var tree map[string]interface{}
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return errs.WrapMsg(err, "parse config", "path", path)
	}
	return decode(tree, cfg)
}

func decode(tree map[string]interface{}, cfg *AppConfig) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		TagName:          "yaml",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return errs.Wrap(err)
	}
	if err := dec.Decode(tree); err != nil {
		return errs.WrapMsg(err, "decode config")
	}
	return nil
}

func applyEnv(cfg *AppConfig) {
	cfg.NodeType = tools.GetEnv(envPrefix+"NODE_TYPE", cfg.NodeType)
	cfg.NodeId = tools.GetEnv(envPrefix+"NODE_ID", cfg.NodeId)
	cfg.HttpAddr = tools.GetEnv(envPrefix+"HTTP_ADDR", cfg.HttpAddr)
	cfg.GrpcAddr = tools.GetEnv(envPrefix+"GRPC_ADDR", cfg.GrpcAddr)
	cfg.Log.Level = tools.GetEnv(envPrefix+"LOG_LEVEL", cfg.Log.Level)
	cfg.Log.JSON = tools.GetEnvBool(envPrefix+"LOG_JSON", cfg.Log.JSON)

	cfg.Auth.Secret = tools.GetEnv(envPrefix+"AUTH_SECRET", cfg.Auth.Secret)

	cfg.Store.BaseURL = tools.GetEnv(envPrefix+"STORE_URL", cfg.Store.BaseURL)
	cfg.Store.Token = tools.GetEnv(envPrefix+"STORE_TOKEN", cfg.Store.Token)
	cfg.Store.Timeout = tools.GetEnvDuration(envPrefix+"STORE_TIMEOUT", cfg.Store.Timeout)

	cfg.Session.HeartbeatTimeout = tools.GetEnvDuration(envPrefix+"HEARTBEAT_TIMEOUT", cfg.Session.HeartbeatTimeout)
	cfg.Session.AllowedOrigins = tools.GetEnvList(envPrefix+"ALLOWED_ORIGINS", cfg.Session.AllowedOrigins)

	cfg.Redis.Addr = tools.GetEnv(envPrefix+"REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = tools.GetEnv(envPrefix+"REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Nats.Servers = tools.GetEnvList(envPrefix+"NATS_SERVERS", cfg.Nats.Servers)
	cfg.Kafka.Brokers = tools.GetEnvList(envPrefix+"KAFKA_BROKERS", cfg.Kafka.Brokers)

	cfg.WorkspaceStore.Driver = tools.GetEnv(envPrefix+"STORE_DRIVER", cfg.WorkspaceStore.Driver)
	// DATABASE_URL 兼容常见部署写法
	cfg.WorkspaceStore.PostgresURL = tools.GetEnv(envPrefix+"DATABASE_URL",
		tools.GetEnv("DATABASE_URL", cfg.WorkspaceStore.PostgresURL))
	cfg.WorkspaceStore.SqlitePath = tools.GetEnv(envPrefix+"SQLITE_PATH", cfg.WorkspaceStore.SqlitePath)
	cfg.WorkspaceStore.MongoURI = tools.GetEnv(envPrefix+"MONGO_URI", cfg.WorkspaceStore.MongoURI)
}

func (c AppConfig) Validate() error {
	var problems []string
	switch c.NodeType {
	case NodeTypeSyncGateway, NodeTypeWorkspaceStore:
	default:
		problems = append(problems, fmt.Sprintf("unknown node_type %q", c.NodeType))
	}
	if strings.TrimSpace(c.Auth.Secret) == "" {
		problems = append(problems, "auth.secret is required")
	}
	if c.Session.HeartbeatTimeout <= 0 {
		problems = append(problems, "session.heartbeat_timeout must be positive")
	}
	if c.Session.SendQueue <= 0 {
		problems = append(problems, "session.send_queue must be positive")
	}
	if c.NodeType == NodeTypeSyncGateway && c.Store.BaseURL == "" {
		problems = append(problems, "store.base_url is required")
	}
	switch c.WorkspaceStore.Driver {
	case "memory":
	case "sqlite":
		if c.WorkspaceStore.SqlitePath == "" {
			problems = append(problems, "workspace_store.sqlite_path is required for sqlite")
		}
	case "postgres":
		if c.WorkspaceStore.PostgresURL == "" {
			problems = append(problems, "workspace_store.postgres_url is required for postgres")
		}
	case "mongo":
		if c.WorkspaceStore.MongoURI == "" {
			problems = append(problems, "workspace_store.mongo_uri is required for mongo")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown workspace_store.driver %q", c.WorkspaceStore.Driver))
	}
	if len(problems) > 0 {
		return errs.ErrBadRequest.WrapMsg("invalid config: " + strings.Join(problems, "; "))
	}
	return nil
}
