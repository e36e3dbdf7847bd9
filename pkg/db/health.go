package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolHealth is a point-in-time view of database reachability and pool
// utilization, as reported by the status command.
type PoolHealth struct {
	Healthy       bool          `json:"healthy"`
	Latency       time.Duration `json:"latency_ns"`
	TotalConns    int32         `json:"total_conns"`
	IdleConns     int32         `json:"idle_conns"`
	AcquiredConns int32         `json:"acquired_conns"`
	Error         string        `json:"error,omitempty"`
}

// Ping checks if the database is reachable.
func Ping(ctx context.Context, pool *pgxpool.Pool) error {
	if pool == nil {
		return fmt.Errorf("pool is nil")
	}
	return pool.Ping(ctx)
}

// Check pings the database and snapshots pool statistics.
func Check(ctx context.Context, pool *pgxpool.Pool) PoolHealth {
	var h PoolHealth

	if pool == nil {
		h.Error = "pool is nil"
		return h
	}

	start := time.Now()
	if err := pool.Ping(ctx); err != nil {
		h.Latency = time.Since(start)
		h.Error = fmt.Sprintf("ping failed: %v", err)
		return h
	}
	h.Latency = time.Since(start)

	stats := pool.Stat()
	h.Healthy = true
	h.TotalConns = stats.TotalConns()
	h.IdleConns = stats.IdleConns()
	h.AcquiredConns = stats.AcquiredConns()
	return h
}
