package amh

import (
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

const (
	bucket      = "mmshutter"
	settingsKey = "amh_config"
)

// Settings is the adapter configuration. It never holds device state.
type Settings struct {
	BaudRate        int  `json:"baud_rate"`
	ReadTimeout     uint `json:"read_timeout"`     // milliseconds
	StrictAnswers   bool `json:"strict_answers"`   // reject answers that are neither R nor E
	OptimisticState bool `json:"optimistic_state"` // commit the state before the device confirms
}

var defaultSettings = Settings{
	BaudRate:    9600,
	ReadTimeout: 2000,
}

func (s Settings) readTimeout() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Millisecond
}

func (s Settings) validate() error {
	if s.BaudRate <= 0 {
		return fmt.Errorf("invalid baud rate: %d", s.BaudRate)
	}
	if s.ReadTimeout == 0 {
		return fmt.Errorf("read timeout must be positive")
	}
	return nil
}

type store struct {
	db *bolt.DB
}

// NewStore creates a new store instance and sets default values if they are not already set.
func NewStore(db *bolt.DB) (*store, error) {
	st := store{db: db}

	if err := st.setDefaults(); err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *store) setDefaults() error {
	if _, err := s.GetSettings(); err != nil {
		log.Infof("Setting default AMH settings")
		return s.SetSettings(defaultSettings)
	}

	return nil
}

// SetSettings saves the adapter settings as a json string in the database.
func (s *store) SetSettings(cfg Settings) error {
	if err := cfg.validate(); err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(bucket))
		if err != nil {
			return err
		}

		value, _ := json.Marshal(cfg)
		return b.Put([]byte(settingsKey), value)
	})
}

// GetSettings retrieves the adapter settings from the database.
func (s *store) GetSettings() (Settings, error) {
	var cfg Settings

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return fmt.Errorf("bucket %s not found", bucket)
		}

		value := b.Get([]byte(settingsKey))
		if value == nil {
			return fmt.Errorf("key %s not found", settingsKey)
		}

		return json.Unmarshal(value, &cfg)
	})

	return cfg, err
}
