package server

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gorhill/cronexpr"

	"github.com/hqtran/keyseek/internal/store"
)

// Janitor prunes sessions (and their recorded queries) older than maxAge on a
// cron schedule.
type Janitor struct {
	expr    *cronexpr.Expression
	maxAge  time.Duration
	archive *store.Store
	logger  *log.Logger
	stop    chan struct{}
}

func NewJanitor(cronSpec string, maxAge time.Duration, archive *store.Store, logger *log.Logger) (*Janitor, error) {
	expr, err := cronexpr.Parse(cronSpec)
	if err != nil {
		return nil, fmt.Errorf("janitor: bad cron %q: %w", cronSpec, err)
	}
	if maxAge <= 0 {
		maxAge = 30 * 24 * time.Hour
	}
	return &Janitor{
		expr:    expr,
		maxAge:  maxAge,
		archive: archive,
		logger:  logger,
		stop:    make(chan struct{}),
	}, nil
}

func (j *Janitor) Start() {
	go func() {
		for {
			next := j.expr.Next(time.Now())
			if next.IsZero() {
				return
			}
			timer := time.NewTimer(time.Until(next))
			select {
			case <-j.stop:
				timer.Stop()
				return
			case <-timer.C:
				j.sweep()
			}
		}
	}()
}

func (j *Janitor) Stop() {
	close(j.stop)
}

func (j *Janitor) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	cutoff := time.Now().Add(-j.maxAge)
	n, err := j.archive.PruneBefore(ctx, cutoff)
	if err != nil {
		j.logger.Printf("sweep failed: %v", err)
		return
	}
	if n > 0 {
		j.logger.Printf("pruned %d sessions older than %s", n, cutoff.Format(time.RFC3339))
	}
}
