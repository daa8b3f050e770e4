package catalog

import (
	"context"
	"time"
)

const DefaultRefreshInterval = 24 * time.Hour

// Refresher refreshes the catalogs once at startup and then on a fixed
// interval until its context ends.
type Refresher struct {
	service  *Service
	interval time.Duration
	names    []Name
}

func NewRefresher(service *Service, interval time.Duration, names ...Name) *Refresher {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	return &Refresher{service: service, interval: interval, names: names}
}

// Run never fails because of a refresh error; those are counted and logged
// by the service.
func (r *Refresher) Run(ctx context.Context) error {
	_ = r.service.Refresh(ctx, r.names...)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			_ = r.service.Refresh(ctx, r.names...)
		}
	}
}
