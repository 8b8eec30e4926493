package intake

import (
	"errors"
	"time"

	"github.com/filepipe-io/filepipe/internal/config"
)

// Config validation errors.
var (
	ErrMissingBrokers      = errors.New("kafka brokers are required")
	ErrMissingTopic        = errors.New("intake topic is required")
	ErrMissingGroupID      = errors.New("intake consumer group id is required")
	ErrMissingBucket       = errors.New("poll bucket is required")
	ErrInvalidPollInterval = errors.New("poll interval must be greater than zero")
)

// KafkaConfig holds push-mode consumer settings.
type KafkaConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// LoadKafkaConfig reads push-mode settings from the environment.
func LoadKafkaConfig() *KafkaConfig {
	return &KafkaConfig{
		Brokers: config.ParseCommaSeparatedList(config.GetEnvStr("KAFKA_BROKERS", "")),
		Topic:   config.GetEnvStr("INTAKE_TOPIC", "filepipe.notifications"),
		GroupID: config.GetEnvStr("INTAKE_GROUP_ID", "filepipe-intake"),
	}
}

// Validate checks that the push configuration is usable.
func (c *KafkaConfig) Validate() error {
	if len(c.Brokers) == 0 {
		return ErrMissingBrokers
	}

	if c.Topic == "" {
		return ErrMissingTopic
	}

	if c.GroupID == "" {
		return ErrMissingGroupID
	}

	return nil
}

// PollConfig holds poll-mode settings.
type PollConfig struct {
	Bucket   string
	Prefix   string
	Interval time.Duration
}

// LoadPollConfig reads poll-mode settings from the environment.
func LoadPollConfig() *PollConfig {
	return &PollConfig{
		Bucket:   config.GetEnvStr("POLL_BUCKET", ""),
		Prefix:   config.GetEnvStr("POLL_PREFIX", ""),
		Interval: config.GetEnvDuration("POLL_INTERVAL", 30*time.Second),
	}
}

// Validate checks that the poll configuration is usable.
func (c *PollConfig) Validate() error {
	if c.Bucket == "" {
		return ErrMissingBucket
	}

	if c.Interval <= 0 {
		return ErrInvalidPollInterval
	}

	return nil
}
