package journal

import (
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	defaultPostgresHost    = "localhost"
	defaultPostgresPort    = 5432
	defaultPostgresSSLMode = "disable"
)

// PGConfig defines the optional PostgreSQL journal sink. ConnString, when
// set, overrides the individual fields.
type PGConfig struct {
	Host       string            `json:"host"`
	Port       int               `json:"port"`
	User       string            `json:"user"`
	Password   string            `json:"-"`
	Database   string            `json:"database"`
	SSLMode    string            `json:"sslMode"`
	Params     map[string]string `json:"params,omitempty"`
	ConnString string            `json:"-"`
	Table      string            `json:"table"`
}

// executionRecord is the relational shape of one journal line.
type executionRecord struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	CreatedAt time.Time `gorm:"index"`
	Type      string    `gorm:"size:32;index"`
	Ticker    string    `gorm:"size:16;index"`
	Trigger   string    `gorm:"size:32"`
	Reason    string
	PnL       float64
	Payload   []byte `gorm:"type:jsonb"`
}

// PGSink appends journal records to a PostgreSQL table. Rows are only ever
// inserted.
type PGSink struct {
	db    *gorm.DB
	table string
}

// NewPGSink opens the connection and migrates the journal table.
func NewPGSink(cfg PGConfig) (*PGSink, error) {
	connString, err := cfg.dsn()
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(postgres.Open(connString), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open journal database: %w", err)
	}

	table := cfg.Table
	if table == "" {
		table = "execution_records"
	}
	if err := db.Table(table).AutoMigrate(&executionRecord{}); err != nil {
		return nil, fmt.Errorf("migrate journal table: %w", err)
	}
	return &PGSink{db: db, table: table}, nil
}

// Append inserts one record.
func (s *PGSink) Append(rec Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	row := executionRecord{
		CreatedAt: rec.Timestamp,
		Type:      string(rec.Type),
		Trigger:   string(rec.Trigger),
		Reason:    rec.Reason,
		PnL:       rec.PnL,
		Payload:   payload,
	}
	switch {
	case rec.Position != nil:
		row.Ticker = rec.Position.Ticker
	case rec.Signal != nil:
		row.Ticker = rec.Signal.Ticker
	case rec.Order != nil:
		row.Ticker = rec.Order.Ticker
	}
	return s.db.Table(s.table).Create(&row).Error
}

// Close closes the underlying connection pool.
func (s *PGSink) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (cfg PGConfig) dsn() (string, error) {
	if cfg.ConnString != "" {
		return cfg.ConnString, nil
	}

	host := cfg.Host
	if host == "" {
		host = defaultPostgresHost
	}
	port := cfg.Port
	if port == 0 {
		port = defaultPostgresPort
	}
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = defaultPostgresSSLMode
	}

	u := &url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", host, port),
	}
	if cfg.User != "" {
		if cfg.Password != "" {
			u.User = url.UserPassword(cfg.User, cfg.Password)
		} else {
			u.User = url.User(cfg.User)
		}
	}
	if cfg.Database != "" {
		u.Path = "/" + cfg.Database
	}

	query := url.Values{}
	query.Set("sslmode", sslMode)
	for key, value := range cfg.Params {
		if key == "" {
			continue
		}
		query.Set(key, value)
	}
	u.RawQuery = query.Encode()

	return u.String(), nil
}
