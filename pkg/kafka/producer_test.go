package kafka

import (
	"testing"
	"time"

	"github.com/IBM/sarama"
)

func TestBuildSaramaConfigAcks(t *testing.T) {
	cases := []struct {
		acks int
		want sarama.RequiredAcks
	}{
		{0, sarama.NoResponse},
		{1, sarama.WaitForLocal},
		{-1, sarama.WaitForAll},
		{7, sarama.WaitForLocal}, // 非法值兜底到 leader 确认
	}
	for _, c := range cases {
		cfg := DefaultProducerConfig(nil)
		cfg.RequiredAcks = c.acks
		if got := buildSaramaConfig(cfg).Producer.RequiredAcks; got != c.want {
			t.Errorf("acks %d -> %v, want %v", c.acks, got, c.want)
		}
	}
}

func TestBuildSaramaConfigCompression(t *testing.T) {
	cases := []struct {
		name string
		want sarama.CompressionCodec
	}{
		{"gzip", sarama.CompressionGZIP},
		{"snappy", sarama.CompressionSnappy},
		{"lz4", sarama.CompressionLZ4},
		{"zstd", sarama.CompressionZSTD},
		{"none", sarama.CompressionNone},
		{"", sarama.CompressionNone},
	}
	for _, c := range cases {
		cfg := DefaultProducerConfig(nil)
		cfg.Compression = c.name
		if got := buildSaramaConfig(cfg).Producer.Compression; got != c.want {
			t.Errorf("compression %q -> %v, want %v", c.name, got, c.want)
		}
	}
}

func TestBuildSaramaConfigBatching(t *testing.T) {
	cfg := ProducerConfig{
		FlushFrequency: 50 * time.Millisecond,
		FlushMessages:  32,
		MaxRetries:     5,
	}
	sc := buildSaramaConfig(cfg)
	if sc.Producer.Flush.Frequency != 50*time.Millisecond {
		t.Errorf("flush frequency = %v", sc.Producer.Flush.Frequency)
	}
	if sc.Producer.Flush.Messages != 32 {
		t.Errorf("flush messages = %d", sc.Producer.Flush.Messages)
	}
	if sc.Producer.Retry.Max != 5 {
		t.Errorf("retries = %d", sc.Producer.Retry.Max)
	}
	// 异步生产者只回传错误
	if sc.Producer.Return.Successes || !sc.Producer.Return.Errors {
		t.Error("expected errors-only return channels")
	}
}

func TestDefaultProducerConfig(t *testing.T) {
	cfg := DefaultProducerConfig([]string{"localhost:9092"})
	if cfg.RequiredAcks != 1 || cfg.Compression != "snappy" {
		t.Errorf("defaults = %+v, want leader acks + snappy", cfg)
	}
	if cfg.FlushMessages <= 0 || cfg.FlushFrequency <= 0 {
		t.Error("expected batching enabled by default")
	}
}
