package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Pruner deletes history older than a cutoff
type Pruner interface {
	Prune(before time.Time) (int64, error)
}

// PruneJob drops verdict history older than retention
func PruneJob(p Pruner, retention time.Duration, now func() time.Time) Job {
	return func(ctx context.Context) error {
		cutoff := now().Add(-retention)
		n, err := p.Prune(cutoff)
		if err != nil {
			return err
		}
		slog.Default().With("component", "scheduler").Info("pruned verdict history", "deleted", n, "before", cutoff)
		return nil
	}
}

// ReportJob writes a report via write and logs where it went
func ReportJob(write func(ctx context.Context) (string, error)) Job {
	return func(ctx context.Context) error {
		path, err := write(ctx)
		if err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
		slog.Default().With("component", "scheduler").Info("wrote report", "path", path)
		return nil
	}
}
