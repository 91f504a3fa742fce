package store

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
)

// Backend drivers.
const (
	DriverPostgres  = "postgres"
	DriverCassandra = "cassandra"
	DriverSQLite    = "sqlite"
)

// Config selects and configures a backend.
type Config struct {
	Driver      string          `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string          `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32           `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32           `yaml:"min_conns" mapstructure:"min_conns"`
	Cassandra   CassandraConfig `yaml:"cassandra" mapstructure:"cassandra"`
}

// DetectDriver infers the driver from a connection string prefix.
func DetectDriver(databaseURL string) string {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return DriverPostgres
	case strings.HasPrefix(databaseURL, "cassandra://"):
		return DriverCassandra
	default:
		return DriverSQLite
	}
}

// EffectiveDriver returns the configured driver or the one implied by the URL.
func (c Config) EffectiveDriver() string {
	if c.Driver != "" {
		return strings.ToLower(c.Driver)
	}
	return DetectDriver(c.DatabaseURL)
}

// Open connects to the configured backend. The selection happens once; the
// returned Store is passed to its consumers explicitly.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.EffectiveDriver() {
	case DriverPostgres:
		return NewPostgres(ctx, cfg.DatabaseURL, &PoolConfig{MaxConns: cfg.MaxConns, MinConns: cfg.MinConns})
	case DriverCassandra:
		cc := cfg.Cassandra
		if cfg.DatabaseURL != "" {
			parsed, err := ParseCassandraURL(cfg.DatabaseURL)
			if err != nil {
				return nil, err
			}
			parsed.Datacenter = cc.Datacenter
			parsed.Consistency = cc.Consistency
			parsed.Timeout = cc.Timeout
			cc = parsed
		}
		if len(cc.Hosts) == 0 {
			return nil, eris.New("store: cassandra requires at least one host")
		}
		if cc.Keyspace == "" {
			cc.Keyspace = "enrichment"
		}
		return NewCassandra(cc)
	case DriverSQLite:
		path := cfg.DatabaseURL
		if path == "" {
			path = "enrich.db"
		}
		return NewSQLite(path)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}
