package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/VeVerse-Metaverse/artheon-api-sub000/internal/liveness"
	"github.com/VeVerse-Metaverse/artheon-api-sub000/internal/orchestrator"
)

// Reconciler periodically repairs recoverable inconsistencies: workloads
// stuck in stopping because a teardown call failed, created rows the
// orchestrator never confirmed, and sessions left open on dead workloads.
type Reconciler struct {
	workloads WorkloadStore
	sessions  SessionStore
	orch      orchestrator.Adapter

	interval    time.Duration
	grace       time.Duration
	orchTimeout time.Duration

	now func() time.Time
}

func NewReconciler(workloads WorkloadStore, sessions SessionStore, orch orchestrator.Adapter, interval, grace, orchTimeout time.Duration) *Reconciler {
	return &Reconciler{
		workloads:   workloads,
		sessions:    sessions,
		orch:        orch,
		interval:    interval,
		grace:       grace,
		orchTimeout: orchTimeout,
		now:         time.Now,
	}
}

// Start runs the reconciliation loop until ctx is cancelled.
func (r *Reconciler) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		log.Info().Dur("interval", r.interval).Msg("reconciler started")
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.RunOnce(ctx)
			}
		}
	}()
}

// RunOnce performs a single reconciliation pass.
func (r *Reconciler) RunOnce(ctx context.Context) {
	now := r.now()

	r.retryStuckTeardowns(ctx, now)

	if expired, err := r.workloads.ExpireCreated(ctx, liveness.Cutoff(now, liveness.MatchWindow), now); err != nil {
		log.Error().Err(err).Msg("failed to expire unconfirmed workloads")
	} else if expired > 0 {
		log.Info().Int64("count", expired).Msg("expired unconfirmed workloads")
	}

	if closed, err := r.sessions.CloseAbandoned(ctx, liveness.Cutoff(now, liveness.ListWindow), now); err != nil {
		log.Error().Err(err).Msg("failed to close abandoned sessions")
	} else if closed > 0 {
		log.Info().Int64("count", closed).Msg("closed sessions abandoned on dead workloads")
	}
}

func (r *Reconciler) retryStuckTeardowns(ctx context.Context, now time.Time) {
	stuck, err := r.workloads.ListStuckStopping(ctx, now.Add(-r.grace))
	if err != nil {
		log.Error().Err(err).Msg("failed to list workloads stuck in stopping")
		return
	}

	for _, workload := range stuck {
		deleteCtx, cancel := context.WithTimeout(ctx, r.orchTimeout)
		err := r.orch.DeleteWorkload(deleteCtx, workload.ID)
		cancel()
		if err != nil {
			log.Warn().Err(err).Str("workload", workload.ID).Msg("teardown retry failed")
			continue
		}
		log.Info().Str("workload", workload.ID).Msg("retried teardown for stuck workload")
	}
}
