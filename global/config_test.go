package global

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "notepad.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := writeConfig(t, `
node_id: gw-7
auth:
  secret: s3cret
store:
  base_url: http://store:9000
  timeout: 2s
session:
  heartbeat_timeout: 45s
nats:
  servers: nats://a:4222,nats://b:4222
kafka:
  brokers: [k1:9092]
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.NodeId != "gw-7" || cfg.Store.BaseURL != "http://store:9000" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.Store.Timeout != 2*time.Second || cfg.Session.HeartbeatTimeout != 45*time.Second {
		t.Fatalf("durations: %v %v", cfg.Store.Timeout, cfg.Session.HeartbeatTimeout)
	}
	if len(cfg.Nats.Servers) != 2 || cfg.Nats.Servers[1] != "nats://b:4222" {
		t.Fatalf("nats servers = %v", cfg.Nats.Servers)
	}
	if len(cfg.Kafka.Brokers) != 1 {
		t.Fatalf("kafka brokers = %v", cfg.Kafka.Brokers)
	}
	// untouched keys keep their defaults
	if cfg.Session.SendQueue != 256 || cfg.Store.MaxRetries != 3 {
		t.Fatalf("defaults lost: %+v", cfg.Session)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "auth:\n  secret: from-file\n")
	t.Setenv("PNOTEPAD_AUTH_SECRET", "from-env")
	t.Setenv("PNOTEPAD_HEARTBEAT_TIMEOUT", "5s")
	t.Setenv("PNOTEPAD_KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Auth.Secret != "from-env" {
		t.Fatalf("secret = %q", cfg.Auth.Secret)
	}
	if cfg.Session.HeartbeatTimeout != 5*time.Second {
		t.Fatalf("heartbeat = %v", cfg.Session.HeartbeatTimeout)
	}
	if len(cfg.Kafka.Brokers) != 2 {
		t.Fatalf("brokers = %v", cfg.Kafka.Brokers)
	}
}

func TestLoadRejectsUnknownKeysAndBadValues(t *testing.T) {
	if _, err := Load(writeConfig(t, "auth:\n  secret: x\nbogus: 1\n")); err == nil {
		t.Fatal("unknown key accepted")
	}
	if _, err := Load(writeConfig(t, "session:\n  heartbeat_timeout: 0s\n")); err == nil {
		t.Fatal("missing secret and zero heartbeat accepted")
	}
	if _, err := Load(writeConfig(t, "auth:\n  secret: x\nworkspace_store:\n  driver: postgres\n")); err == nil {
		t.Fatal("postgres without url accepted")
	}
}

func TestHashPartitionStable(t *testing.T) {
	a := HashPartition("workspace-1", 8)
	if a != HashPartition("workspace-1", 8) || a < 0 || a >= 8 {
		t.Fatalf("partition = %d", a)
	}
	if HashPartition("x", 0) != 0 {
		t.Fatal("zero partitions must map to 0")
	}
}

func TestExampleConfigLoads(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "config", "pnotepad.example.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.NodeType != NodeTypeSyncGateway || cfg.Redis.PresenceTTL != 90*time.Second {
		t.Fatalf("example config: %+v", cfg)
	}
}
