package services

import (
	"context"
	"time"

	"github.com/mahidalhan/axon/internal/models"
	"github.com/mahidalhan/axon/internal/stream"
	"go.uber.org/zap"
)

type LRIWriter interface {
	SaveLRIScores(ctx context.Context, rows []models.LRIScore) error
}

type ConnectionLister interface {
	List() []*stream.Manager
}

// Recorder samples the current LRI of every open connection at a fixed
// interval and persists the readings it has not stored yet. The daily
// aggregates count each stored reading as half a minute, so the default
// interval is 30s.
type Recorder struct {
	log      *zap.Logger
	writer   LRIWriter
	conns    ConnectionLister
	interval time.Duration

	last map[string]time.Time
}

func NewRecorder(log *zap.Logger, writer LRIWriter, conns ConnectionLister, interval time.Duration) *Recorder {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Recorder{
		log:      log,
		writer:   writer,
		conns:    conns,
		interval: interval,
		last:     map[string]time.Time{},
	}
}

// Start records until ctx is done.
func (r *Recorder) Start(ctx context.Context) {
	r.log.Info("Starting LRI recorder...", zap.Duration("interval", r.interval))
	go func() {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n, err := r.Flush(ctx); err != nil {
					r.log.Error("Failed to record LRI readings", zap.Error(err))
				} else if n > 0 {
					r.log.Debug("Recorded LRI readings", zap.Int("count", n))
				}
			}
		}
	}()
}

// Flush stores one reading per connection whose snapshot changed since the
// previous flush. Not called concurrently.
func (r *Recorder) Flush(ctx context.Context) (int, error) {
	seen := map[string]bool{}
	var rows []models.LRIScore
	for _, m := range r.conns.List() {
		id := m.ID()
		seen[id] = true
		cur, ok := m.CurrentLRI()
		if !ok || !cur.Timestamp.After(r.last[id]) {
			continue
		}
		rows = append(rows, models.NewLRIScore(id, cur.Sample()))
	}
	for id := range r.last {
		if !seen[id] {
			delete(r.last, id)
		}
	}
	if len(rows) == 0 {
		return 0, nil
	}
	if err := r.writer.SaveLRIScores(ctx, rows); err != nil {
		return 0, err
	}
	for _, row := range rows {
		r.last[row.ConnectionID] = row.Timestamp
	}
	return len(rows), nil
}
