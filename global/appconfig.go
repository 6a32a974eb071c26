package global

import "time"

const (
	NodeTypeSyncGateway    = "syncGateway"    // 实时同步网关节点
	NodeTypeWorkspaceStore = "workspaceStore" // 工作区存储节点（开发/测试用）
)

type AppConfig struct {
	NodeType       string               `yaml:"node_type"`
	NodeId         string               `yaml:"node_id"`   // 节点的Id
	HttpAddr       string               `yaml:"http_addr"` // http 启动地址
	GrpcAddr       string               `yaml:"grpc_addr"` // grpc health 地址，空则不启动
	Log            LogConfig            `yaml:"log"`
	Auth           AuthConfig           `yaml:"auth"`
	Store          StoreConfig          `yaml:"store"`
	Session        SessionConfig        `yaml:"session"`
	Redis          RedisConfig          `yaml:"redis"`
	Nats           NatsConfig           `yaml:"nats"`
	Kafka          KafkaConfig          `yaml:"kafka"`
	Events         EventsConfig         `yaml:"events"`
	WorkspaceStore WorkspaceStoreConfig `yaml:"workspace_store"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// AuthConfig holds the Account Service token parameters shared by both node types.
type AuthConfig struct {
	Secret string `yaml:"secret"`
	Alg    string `yaml:"alg"`
}

// StoreConfig points the Persistence Coordinator at the Workspace Store.
type StoreConfig struct {
	BaseURL    string        `yaml:"base_url"`
	Token      string        `yaml:"token"` // bearer credential for store calls
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

type SessionConfig struct {
	HeartbeatTimeout time.Duration `yaml:"heartbeat_timeout"`
	SendQueue        int           `yaml:"send_queue"`
	WriteWait        time.Duration `yaml:"write_wait"`
	MaxMessageBytes  int64         `yaml:"max_message_bytes"`
	AllowedOrigins   []string      `yaml:"allowed_origins"` // 空则允许所有来源
}

type RedisConfig struct {
	Addr        string        `yaml:"addr"` // 空则关闭 presence
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db"`
	PresenceTTL time.Duration `yaml:"presence_ttl"`
}

type NatsConfig struct {
	Servers       []string `yaml:"servers"` // 空则关闭事件推送
	Name          string   `yaml:"name"`
	SubjectPrefix string   `yaml:"subject_prefix"`
	JetStream     bool     `yaml:"jetstream"` // 走 JetStream 持久化并按 Nats-Msg-Id 去重
	User          string   `yaml:"user"`
	Password      string   `yaml:"password"`
}

type KafkaConfig struct {
	Brokers     []string `yaml:"brokers"` // 空则关闭编辑日志
	Topic       string   `yaml:"topic"`
	Compression string   `yaml:"compression"`
}

type EventsConfig struct {
	Queue   int `yaml:"queue"`
	Workers int `yaml:"workers"`
}

type WorkspaceStoreConfig struct {
	Driver        string `yaml:"driver"` // memory | sqlite | postgres | mongo
	SqlitePath    string `yaml:"sqlite_path"`
	PostgresURL   string `yaml:"postgres_url"`
	MongoURI      string `yaml:"mongo_uri"`
	MongoDatabase string `yaml:"mongo_database"`
}
