package service

import (
	"context"
	"time"

	"github.com/scaleflower/otrs-updater/common/config"
	"github.com/scaleflower/otrs-updater/common/logger"
)

// Poller drives periodic release checks. The interval is clamped to the
// configured floor at config load time.
type Poller struct {
	svc      *UpdateService
	interval time.Duration
	enabled  bool
	log      *logger.Logger
}

// NewPoller creates a poller from the update configuration
func NewPoller(svc *UpdateService, cfg config.UpdateConfig, log *logger.Logger) *Poller {
	return &Poller{
		svc:      svc,
		interval: cfg.PollInterval,
		enabled:  cfg.Enabled,
		log:      log,
	}
}

// Run checks immediately, then on every tick until the context is
// cancelled. Check failures are logged and retried on the next tick.
func (p *Poller) Run(ctx context.Context) {
	if !p.enabled {
		p.log.Info("update polling disabled")
		return
	}

	p.log.Info("update polling started", "interval", p.interval)

	if _, err := p.svc.Check(ctx, false); err != nil {
		p.log.Warn("release check failed", "error", err)
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.log.Info("update polling stopped")
			return
		case <-ticker.C:
			if _, err := p.svc.Check(ctx, false); err != nil {
				p.log.Warn("release check failed", "error", err)
			}
		}
	}
}
