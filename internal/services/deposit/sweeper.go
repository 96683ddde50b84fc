package deposit

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	// sweepBatchSize caps how many pending deposits one sweep touches.
	sweepBatchSize = 100

	// defaultSweepMinAge keeps the sweep off deposits the client is
	// still actively polling right after creation.
	defaultSweepMinAge = 30 * time.Second
)

func (s *Service) sweepMinAge() time.Duration {
	return defaultSweepMinAge
}

// StartSweeper schedules SweepPending on the given cron spec and
// starts the scheduler. The returned cron must be stopped on shutdown.
func (s *Service) StartSweeper(ctx context.Context, spec string) (*cron.Cron, error) {
	c := cron.New()

	_, err := c.AddFunc(spec, func() {
		s.SweepPending(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("schedule deposit sweep: %w", err)
	}

	c.Start()

	return c, nil
}
