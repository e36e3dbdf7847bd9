package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/minuteworks/scribe/config"
	"github.com/minuteworks/scribe/pkg/buildinfo"
	"github.com/minuteworks/scribe/pkg/db"
)

// Status command flags.
var statusOutput string

// statusReport is the aggregate health report.
type statusReport struct {
	Version  string        `json:"version"`
	Database string        `json:"database"`
	Pool     db.PoolHealth `json:"pool,omitempty"`
	Redis    string        `json:"redis"`
	Healthy  bool          `json:"healthy"`
}

// NewStatusCommand creates the 'status' command.
func NewStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check backend health",
		Long: `Check connectivity to the configured backends.

Pings PostgreSQL and, when enabled, Redis, and reports the result.
Exits non-zero when any configured backend is unreachable.

Examples:
  scribe status
  scribe status --output json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context())
		},
	}

	cmd.Flags().StringVarP(&statusOutput, "output", "o", "text", "Output format: text, json")

	return cmd
}

// runStatus executes the status command.
func runStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	report := statusReport{
		Version:  buildinfo.String(),
		Database: "ok",
		Redis:    "disabled",
		Healthy:  true,
	}

	pool, err := db.Connect(ctx, cfg.DB)
	if err != nil {
		report.Database = err.Error()
		report.Healthy = false
	} else {
		report.Pool = db.Check(ctx, pool)
		if !report.Pool.Healthy {
			report.Database = report.Pool.Error
			report.Healthy = false
		}
		pool.Close()
	}

	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			report.Redis = err.Error()
			report.Healthy = false
		} else {
			report.Redis = "ok"
		}
		rdb.Close()
	}

	if statusOutput == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		fmt.Printf("scribe %s\n", report.Version)
		fmt.Printf("  database: %s\n", report.Database)
		if report.Pool.Healthy {
			fmt.Printf("  latency:  %s\n", report.Pool.Latency)
		}
		fmt.Printf("  redis:    %s\n", report.Redis)
	}

	if !report.Healthy {
		return fmt.Errorf("one or more backends are unreachable")
	}
	return nil
}
