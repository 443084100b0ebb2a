// Package sweep fails projects stuck in plan_status=pending. A crashed
// process can leave pending rows behind; without the sweeper those projects
// reject retries forever.
package sweep

import (
	"context"
	"log"
	"time"

	"github.com/grouperhq/grouper/internal/models"
	"github.com/grouperhq/grouper/internal/plan"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// nextCronDuration parses a 5-field cron expression and returns the duration
// until the next fire time. Returns 0 on parse error.
func nextCronDuration(expr string) time.Duration {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return 0
	}
	next := sched.Next(time.Now())
	d := time.Until(next)
	if d < 0 {
		return 0
	}
	return d
}

// Sweeper periodically marks stale pending projects as failed.
type Sweeper struct {
	db         *gorm.DB
	cronExpr   string
	staleAfter time.Duration
}

// New creates a sweeper. staleAfter is how long a project may sit in pending
// before it is considered abandoned.
func New(db *gorm.DB, cronExpr string, staleAfter time.Duration) *Sweeper {
	return &Sweeper{db: db, cronExpr: cronExpr, staleAfter: staleAfter}
}

// Run sweeps on the cron schedule until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	d := nextCronDuration(s.cronExpr)
	if d <= 0 {
		log.Printf("sweep: invalid cron expression %q, sweeper disabled", s.cronExpr)
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			if n, err := s.SweepOnce(); err != nil {
				log.Printf("sweep: %v", err)
			} else if n > 0 {
				log.Printf("sweep: failed %d stale pending project(s)", n)
			}
			if d := nextCronDuration(s.cronExpr); d > 0 {
				timer.Reset(d)
			} else {
				return
			}
		}
	}
}

// SweepOnce fails every project pending longer than staleAfter and returns
// the number of rows changed. The conditional update keeps it safe to run
// alongside live generation: a project that just flipped to ready or failed
// no longer matches.
func (s *Sweeper) SweepOnce() (int64, error) {
	cutoff := time.Now().Add(-s.staleAfter)
	res := s.db.Model(&models.Project{}).
		Where("plan_status = ? AND updated_at < ?", models.PlanStatusPending, cutoff).
		Updates(map[string]interface{}{
			"plan_status": models.PlanStatusFailed,
			"plan_error":  plan.CodeGenerateOrPersistFailed + ": generation attempt went stale and was failed by the sweeper",
		})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
