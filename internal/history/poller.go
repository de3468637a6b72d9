package history

import (
	"context"
	"time"

	"github.com/cropdx/leafscan/internal/diagnosis"
	"github.com/cropdx/leafscan/internal/logger"
)

// DefaultPollInterval is used when a Poller is created with a non-positive interval.
const DefaultPollInterval = 30 * time.Second

// UpdateFunc receives the snapshot after each successful poll.
type UpdateFunc func(records []diagnosis.HistoryRecord)

// Poller refreshes a Repository on a fixed interval.
type Poller struct {
	repo     *Repository
	interval time.Duration
	onUpdate UpdateFunc
	log      logger.Logger
}

// NewPoller creates a poller for repo. onUpdate may be nil.
func NewPoller(repo *Repository, interval time.Duration, onUpdate UpdateFunc) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{
		repo:     repo,
		interval: interval,
		onUpdate: onUpdate,
		log:      repo.log.Module("poller"),
	}
}

// Run refreshes immediately and then on every tick until ctx is cancelled.
// Failed polls are logged and keep the previous snapshot.
func (p *Poller) Run(ctx context.Context) error {
	p.log.Info("History polling started", logger.Duration("interval", p.interval))

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			p.log.Info("History polling stopped")
			return ctx.Err()
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	records, err := p.repo.Refresh(ctx)
	if err != nil {
		if ctx.Err() == nil {
			p.log.Warn("History poll failed", logger.Error(err))
		}
		return
	}
	if p.onUpdate != nil {
		p.onUpdate(records)
	}
}
