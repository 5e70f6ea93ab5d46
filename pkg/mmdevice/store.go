package mmdevice

import (
	"encoding/json"
	"fmt"

	log "github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

const (
	bucket           = "mmshutter"
	defaultMQTTHost  = "localhost"
	defaultMQTTPort  = 1883
	defaultTopicRoot = "mmshutter"

	configKey = "host_config"
)

type MQTTConfig struct {
	Enabled   bool
	Host      string
	Port      int
	Username  string
	Password  string
	TopicRoot string
}

// Config holds the host settings edited from the setup page.
type Config struct {
	MQTT MQTTConfig
}

func (c Config) validate() error {
	if !c.MQTT.Enabled {
		return nil
	}
	if c.MQTT.Host == "" {
		return fmt.Errorf("host cannot be empty")
	}
	if c.MQTT.Port < 1 || c.MQTT.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.MQTT.Port)
	}
	if c.MQTT.TopicRoot == "" {
		return fmt.Errorf("topic root cannot be empty")
	}
	return nil
}

var defaultConfig = Config{
	MQTT: MQTTConfig{
		Host:      defaultMQTTHost,
		Port:      defaultMQTTPort,
		TopicRoot: defaultTopicRoot,
	},
}

type Store struct {
	db *bolt.DB
}

func NewStore(db *bolt.DB) (*Store, error) {
	st := Store{db: db}

	if err := st.setDefaults(); err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *Store) setDefaults() error {
	if _, err := s.GetConfig(); err != nil {
		log.Infof("Setting default host config")
		return s.SetConfig(defaultConfig)
	}

	return nil
}

// SetConfig saves the host configuration as a json string in the database.
func (s *Store) SetConfig(cfg Config) error {
	if err := cfg.validate(); err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(bucket))
		if err != nil {
			return err
		}

		value, _ := json.Marshal(cfg)
		return b.Put([]byte(configKey), value)
	})
}

// GetConfig retrieves the host configuration from the database.
func (s *Store) GetConfig() (Config, error) {
	var cfg Config

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return fmt.Errorf("bucket %s not found", bucket)
		}

		value := b.Get([]byte(configKey))
		if value == nil {
			return fmt.Errorf("key config not found")
		}

		return json.Unmarshal(value, &cfg)
	})

	return cfg, err
}
