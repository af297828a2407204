package storage

import (
	"context"
	"fmt"

	"github.com/gocql/gocql"

	"cve-crawler/pkg/models"
)

// CassandraStorage keeps records in a table keyed by cve_id. INSERT in
// Cassandra overwrites every listed column, so it is a full-replace upsert.
type CassandraStorage struct {
	session *gocql.Session
	table   string
}

func NewCassandraStorage(hosts []string, keyspace, table string) (*CassandraStorage, error) {
	cluster := gocql.NewCluster(hosts...)
	cluster.Keyspace = keyspace
	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("connect cassandra: %w", err)
	}
	if table == "" {
		table = "vulnerabilities"
	}
	return &CassandraStorage{session: session, table: table}, nil
}

func (cs *CassandraStorage) BulkUpsert(ctx context.Context, records []models.VulnerabilityRecord) error {
	if len(records) == 0 {
		return nil
	}

	query := upsertCQL(cs.table)
	batch := cs.session.NewBatch(gocql.UnloggedBatch).WithContext(ctx)
	for _, rec := range records {
		batch.Query(query, rec.ID, rec.Name, rec.Description)
	}
	if err := cs.session.ExecuteBatch(batch); err != nil {
		return fmt.Errorf("cassandra batch of %d: %w", len(records), err)
	}
	return nil
}

func (cs *CassandraStorage) Close(context.Context) error {
	cs.session.Close()
	return nil
}

func upsertCQL(table string) string {
	return fmt.Sprintf("INSERT INTO %s (cve_id, name, description) VALUES (?, ?, ?)", table)
}
