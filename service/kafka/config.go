package kafka

import (
	"strings"
	"time"

	"github.com/Shopify/sarama"
)

// JournalConfig configures the edit journal producer.
type JournalConfig struct {
	Brokers         []string
	Topic           string
	ClientID        string
	ProducerRetries int
	Compression     string // none/snappy/lz4/zstd/gzip
	KafkaVersion    sarama.KafkaVersion
}

// BuildBaseConfig returns the producer settings used by the journal.
func BuildBaseConfig(c JournalConfig) *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Version = c.KafkaVersion
	if cfg.Version == (sarama.KafkaVersion{}) {
		cfg.Version = sarama.V2_1_0_0
	}
	if c.ClientID != "" {
		cfg.ClientID = c.ClientID
	}

	// Producer
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	if c.ProducerRetries <= 0 {
		c.ProducerRetries = 1
	}
	cfg.Producer.Retry.Max = c.ProducerRetries
	cfg.Producer.Partitioner = sarama.NewHashPartitioner // ★ 关键：Key(workspace) 控制分区，同一工作区有序
	cfg.Producer.Compression = compressionCodec(c.Compression)

	// Net
	cfg.Net.DialTimeout = 10 * time.Second
	cfg.Net.ReadTimeout = 30 * time.Second
	cfg.Net.WriteTimeout = 30 * time.Second
	return cfg
}

func compressionCodec(name string) sarama.CompressionCodec {
	switch strings.ToLower(name) {
	case "snappy":
		return sarama.CompressionSnappy
	case "lz4":
		return sarama.CompressionLZ4
	case "zstd":
		return sarama.CompressionZSTD
	case "gzip":
		return sarama.CompressionGZIP
	default:
		return sarama.CompressionNone
	}
}
