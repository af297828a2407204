package storage

import (
	"context"
	"fmt"

	"cve-crawler/pkg/models"
)

// Store persists vulnerability records keyed by ID. BulkUpsert inserts absent
// keys and fully replaces present ones; records inside one call are applied
// unordered and one failing record must not block the others.
type Store interface {
	BulkUpsert(ctx context.Context, records []models.VulnerabilityRecord) error
	Close(ctx context.Context) error
}

// Options selects and configures a Store backend.
type Options struct {
	Driver         string   `mapstructure:"driver"`
	MongoURI       string   `mapstructure:"mongo_uri"`
	Database       string   `mapstructure:"database"`
	Collection     string   `mapstructure:"collection"`
	CassandraHosts []string `mapstructure:"cassandra_hosts"`
	Keyspace       string   `mapstructure:"keyspace"`
	Table          string   `mapstructure:"table"`
}

// Open connects to the configured backend and verifies the connection.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Driver {
	case "mongo", "":
		ms, err := NewMongoStore(ctx, opts.MongoURI, opts.Database, opts.Collection)
		if err != nil {
			return nil, err
		}
		return ms, nil
	case "cassandra":
		cs, err := NewCassandraStorage(opts.CassandraHosts, opts.Keyspace, opts.Table)
		if err != nil {
			return nil, err
		}
		return cs, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", opts.Driver)
	}
}
