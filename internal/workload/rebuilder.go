// Package workload runs the nightly job that recomputes staff utilization
// rows from the event store.
package workload

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/example/calendar-scheduler/internal/application"
	"github.com/example/calendar-scheduler/internal/persistence"
)

// Rebuilder schedules periodic workload rebuilds. Each run recomputes
// yesterday and today for every staff member, so a missed run self-heals on
// the next one.
type Rebuilder struct {
	cron    *cron.Cron
	store   persistence.Store
	service *application.WorkloadService
	spec    string
	logger  zerolog.Logger
	now     func() time.Time
}

// New creates a rebuilder on the given cron spec (standard five-field syntax).
func New(store persistence.Store, service *application.WorkloadService, spec string, logger zerolog.Logger, now func() time.Time) *Rebuilder {
	if now == nil {
		now = time.Now
	}
	return &Rebuilder{
		cron:    cron.New(),
		store:   store,
		service: service,
		spec:    spec,
		logger:  logger,
		now:     now,
	}
}

// Start validates the cron spec, registers the job and starts the loop.
func (r *Rebuilder) Start() error {
	if _, err := r.cron.AddFunc(r.spec, func() {
		if err := r.RunOnce(context.Background()); err != nil {
			r.logger.Error().Err(err).Msg("workload rebuild failed")
		}
	}); err != nil {
		return fmt.Errorf("workload: invalid cron spec %q: %w", r.spec, err)
	}
	r.cron.Start()
	r.logger.Info().Str("spec", r.spec).Msg("workload rebuilder started")
	return nil
}

// Stop halts the cron loop and waits for a running job to finish.
func (r *Rebuilder) Stop() {
	<-r.cron.Stop().Done()
	r.logger.Info().Msg("workload rebuilder stopped")
}

// RunOnce rebuilds yesterday and today for every staff member.
func (r *Rebuilder) RunOnce(ctx context.Context) error {
	staff, err := r.store.ListStaff(ctx)
	if err != nil {
		return fmt.Errorf("workload: list staff: %w", err)
	}

	today := r.now().UTC().Truncate(24 * time.Hour)
	days := []time.Time{today.AddDate(0, 0, -1), today}

	rebuilt := 0
	for _, user := range staff {
		for _, day := range days {
			if _, err := r.service.RebuildDay(ctx, r.store, user.ID, day); err != nil {
				return fmt.Errorf("workload: rebuild %s on %s: %w", user.ID, day.Format("2006-01-02"), err)
			}
			rebuilt++
		}
	}

	r.logger.Info().Int("staff", len(staff)).Int("days_rebuilt", rebuilt).Msg("workload rebuild finished")
	return nil
}
