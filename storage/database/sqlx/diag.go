// Package sqlxrepos runs the raw SQL queries that do not go through the ORM.
package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/huddle/core/diag"
)

// countedTables maps the entities reported by diagnostics to their tables.
var countedTables = []struct {
	entity, table string
}{
	{"users", "users"},
	{"playbooks", "playbooks"},
	{"plays", "plays"},
	{"frames", "frames"},
	{"pushSubscriptions", "push_subscriptions"},
	{"announcements", "announcements"},
	{"videos", "videos"},
	{"videoMarkers", "video_markers"},
	{"trainingTasks", "training_tasks"},
	{"chatRooms", "chat_rooms"},
	{"chatMessages", "chat_messages"},
}

type diagStore struct {
	db *sqlx.DB
}

var _ diag.Store = (*diagStore)(nil) // interface compliance check

func NewDiagStore(db *sqlx.DB) *diagStore {
	return &diagStore{db: db}
}

func (s diagStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s diagStore) Stats() sql.DBStats {
	return s.db.Stats()
}

func (s diagStore) Counts(ctx context.Context) (map[string]int64, error) {
	counts := make(map[string]int64, len(countedTables))
	for _, t := range countedTables {
		var n int64
		if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM "+t.table); err != nil {
			return nil, errors.Wrapf(err, "counting %s", t.entity)
		}
		counts[t.entity] = n
	}
	return counts, nil
}
