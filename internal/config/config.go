package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"graph-cdc/internal/models"
)

type Config struct {
	MySQL     MySQLConfig     `yaml:"mysql"`
	Binlog    BinlogConfig    `yaml:"binlog"`
	NATS      NATSConfig      `yaml:"nats"`
	Source    SourceConfig    `yaml:"source"`
	Graph     GraphConfig     `yaml:"graph"`
	Transform TransformConfig `yaml:"transform"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type MySQLConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	ServerID uint32 `yaml:"server_id"`
	Flavor   string `yaml:"flavor"` // mysql, mariadb
}

type BinlogConfig struct {
	PositionFile  string `yaml:"position_file"`
	StartPosition uint32 `yaml:"start_position"`
}

type NATSConfig struct {
	URL           string        `yaml:"url"`
	Subject       string        `yaml:"subject"`
	MaxReconnect  int           `yaml:"max_reconnect"`
	ReconnectWait time.Duration `yaml:"reconnect_wait"`
}

// SourceConfig identifies this source to downstream consumers. The id ends
// up in the envelope's db field.
type SourceConfig struct {
	ID string `yaml:"id"`
}

// GraphConfig controls how captured rows map onto graph elements. A table
// is emitted as a node unless a relationship rule names it.
type GraphConfig struct {
	IDColumn      string             `yaml:"id_column"`
	Relationships []RelationshipRule `yaml:"relationships"`
}

// RelationshipRule declares a join table whose rows are emitted as
// relationships. StartColumn and EndColumn name the columns holding the
// node ids at either end; Label overrides the table name as the
// relationship label.
type RelationshipRule struct {
	Database    string `yaml:"database"`
	Table       string `yaml:"table"`
	Label       string `yaml:"label"`
	StartColumn string `yaml:"start_column"`
	EndColumn   string `yaml:"end_column"`
}

type TransformConfig struct {
	Script string `yaml:"script"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Set defaults
	if config.NATS.ReconnectWait == 0 {
		config.NATS.ReconnectWait = 2 * time.Second
	}
	if config.NATS.Subject == "" {
		config.NATS.Subject = "graph.changes"
	}
	if config.MySQL.Flavor == "" {
		config.MySQL.Flavor = "mysql"
	}
	if config.Graph.IDColumn == "" {
		config.Graph.IDColumn = "id"
	}

	return &config, nil
}

// SourceID resolves the source identifier: the configured value wins, then
// the SOURCE_ID environment variable, then the built-in default.
func (c *Config) SourceID() string {
	if c.Source.ID != "" {
		return c.Source.ID
	}
	if id := os.Getenv(models.SourceIDEnvVar); id != "" {
		return id
	}
	return models.DefaultSourceID
}
