package diag

import (
	"context"
	"database/sql"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/huddle/core"
)

type fakeStore struct {
	pingErr  error
	countErr error
}

func (s fakeStore) Ping(context.Context) error { return s.pingErr }
func (s fakeStore) Stats() sql.DBStats         { return sql.DBStats{OpenConnections: 3, InUse: 1, Idle: 2, MaxOpenConnections: 20} }
func (s fakeStore) Counts(context.Context) (map[string]int64, error) {
	if s.countErr != nil {
		return nil, s.countErr
	}
	return map[string]int64{"plays": 4, "frames": 12}, nil
}

type fakeClients int

func (c fakeClients) Clients() int { return int(c) }

func TestReport(t *testing.T) {
	conf := &core.Config{AppName: "Huddle", Build: "1.2.3", Env: "TEST"}

	tests := []struct {
		name       string
		store      fakeStore
		wantOK     bool
		wantError  string
		wantCounts map[string]int64
	}{
		{"healthy", fakeStore{}, true, "", map[string]int64{"plays": 4, "frames": 12}},
		{"unreachable", fakeStore{pingErr: errors.New("connection refused")}, false, "connection refused", nil},
		{"count failure", fakeStore{countErr: errors.New("no such table")}, true, "no such table", nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rep := NewService(tc.store, fakeClients(5), conf).Report(context.Background())
			assert.Equal(t, "Huddle", rep.App)
			assert.Equal(t, "1.2.3", rep.Build)
			assert.Equal(t, "TEST", rep.Env)
			assert.Equal(t, 5, rep.LiveClients)
			assert.Positive(t, rep.Goroutines)
			assert.Equal(t, 3, rep.Database.OpenConnections)
			assert.Equal(t, 20, rep.Database.MaxOpen)
			assert.Equal(t, tc.wantOK, rep.Database.OK)
			assert.Equal(t, tc.wantError, rep.Database.Error)
			assert.Equal(t, tc.wantCounts, rep.Database.Counts)
		})
	}
}
