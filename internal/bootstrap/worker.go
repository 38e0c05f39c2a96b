package bootstrap

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Worker runs the scheduled sync loops: the windowed provider sync for every
// eligible connection plus the Yahoo IMAP batch.
type Worker struct {
	deps *Dependencies
	log  zerolog.Logger
}

func NewWorker(deps *Dependencies) *Worker {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		With().Timestamp().Str("component", "worker").Logger()
	return &Worker{deps: deps, log: log}
}

// Run blocks until ctx is cancelled. The first round starts immediately;
// later rounds follow the configured interval.
func (w *Worker) Run(ctx context.Context) {
	interval := w.deps.Config.SyncInterval
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	w.log.Info().Dur("interval", interval).Msg("worker started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("worker stopping")
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

func (w *Worker) runOnce(ctx context.Context) {
	started := time.Now()
	w.deps.SyncService.SyncAll(ctx)
	w.deps.IMAPBatch.Run(ctx)
	w.log.Info().Dur("elapsed", time.Since(started)).Msg("sync round finished")
}
