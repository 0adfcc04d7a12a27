// Package diag reports the health of a running API process to admins.
package diag

import (
	"context"
	"database/sql"
	"runtime"
	"time"

	"github.com/trezcool/huddle/core"
)

type (
	// Store is the database as seen by diagnostics.
	Store interface {
		Ping(ctx context.Context) error
		Stats() sql.DBStats
		// Counts returns the number of rows per entity.
		Counts(ctx context.Context) (map[string]int64, error)
	}

	// ClientCounter counts the live websocket clients.
	ClientCounter interface {
		Clients() int
	}

	DatabaseReport struct {
		OK              bool             `json:"ok"`
		Error           string           `json:"error,omitempty"`
		OpenConnections int              `json:"openConnections"`
		InUse           int              `json:"inUse"`
		Idle            int              `json:"idle"`
		WaitCount       int64            `json:"waitCount"`
		MaxOpen         int              `json:"maxOpenConnections"`
		Counts          map[string]int64 `json:"counts,omitempty"`
	}

	Report struct {
		App         string         `json:"app"`
		Build       string         `json:"build"`
		Env         string         `json:"env"`
		StartedAt   time.Time      `json:"startedAt"`
		Uptime      string         `json:"uptime"`
		Goroutines  int            `json:"goroutines"`
		GoVersion   string         `json:"goVersion"`
		LiveClients int            `json:"liveClients"`
		Database    DatabaseReport `json:"database"`
	}

	Service struct {
		store     Store
		clients   ClientCounter
		conf      *core.Config
		startedAt time.Time
	}
)

func NewService(store Store, clients ClientCounter, conf *core.Config) *Service {
	return &Service{store: store, clients: clients, conf: conf, startedAt: time.Now().UTC()}
}

// Report never fails: database errors are part of the report.
func (svc *Service) Report(ctx context.Context) Report {
	rep := Report{
		App:        svc.conf.AppName,
		Build:      svc.conf.Build,
		Env:        svc.conf.Env,
		StartedAt:  svc.startedAt,
		Uptime:     time.Since(svc.startedAt).Round(time.Second).String(),
		Goroutines: runtime.NumGoroutine(),
		GoVersion:  runtime.Version(),
	}
	if svc.clients != nil {
		rep.LiveClients = svc.clients.Clients()
	}

	stats := svc.store.Stats()
	rep.Database = DatabaseReport{
		OpenConnections: stats.OpenConnections,
		InUse:           stats.InUse,
		Idle:            stats.Idle,
		WaitCount:       stats.WaitCount,
		MaxOpen:         stats.MaxOpenConnections,
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := svc.store.Ping(ctx); err != nil {
		rep.Database.Error = err.Error()
		return rep
	}
	rep.Database.OK = true

	counts, err := svc.store.Counts(ctx)
	if err != nil {
		rep.Database.Error = err.Error()
		return rep
	}
	rep.Database.Counts = counts
	return rep
}
