package reconciler

import (
	"strings"
	"sync"
	"time"

	"github.com/flapjack-io/flapjack/pkg/log"
	"github.com/flapjack-io/flapjack/pkg/metrics"
	"github.com/flapjack-io/flapjack/pkg/storage"
	"github.com/rs/zerolog"
)

// DefaultStateRetention is how many State samples TrimStates keeps per
// check when the caller does not override it.
const DefaultStateRetention = 500

// DefaultInterval is how often Reconciler runs a sweep.
const DefaultInterval = 30 * time.Second

// Reconciler periodically self-heals invariant drift that the hot path
// (Processor, Resolver) doesn't clean up inline.
type Reconciler struct {
	store           storage.Store
	logger          zerolog.Logger
	interval        time.Duration
	stateRetention  int
	mu              sync.Mutex
	stopCh          chan struct{}
}

// New creates a Reconciler. interval and stateRetention fall back to
// DefaultInterval / DefaultStateRetention when zero.
func New(store storage.Store, interval time.Duration, stateRetention int) *Reconciler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if stateRetention <= 0 {
		stateRetention = DefaultStateRetention
	}
	return &Reconciler{
		store:          store,
		logger:         log.WithComponent("reconciler"),
		interval:       interval,
		stateRetention: stateRetention,
		stopCh:         make(chan struct{}),
	}
}

// Start runs the sweep loop in a new goroutine.
func (r *Reconciler) Start() {
	go r.run()
}

// Stop ends the sweep loop.
func (r *Reconciler) Stop() {
	close(r.stopCh)
}

func (r *Reconciler) run() {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info().Dur("interval", r.interval).Msg("reconciler started")

	for {
		select {
		case <-ticker.C:
			r.sweep()
		case <-r.stopCh:
			r.logger.Info().Msg("reconciler stopped")
			return
		}
	}
}

// sweep runs one full self-heal cycle. It never mutates a Check's
// condition, streak, or route set — those belong to the Processor and
// Resolver's write paths.
func (r *Reconciler) sweep() {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.ReconciliationDuration)
		metrics.SelfHealCyclesTotal.Inc()
	}()

	r.mu.Lock()
	defer r.mu.Unlock()

	checks, err := r.store.ListChecks()
	if err != nil {
		r.logger.Error().Err(err).Msg("list checks failed, skipping sweep")
		return
	}

	now := time.Now()
	for _, check := range checks {
		if err := r.reconcileAlertingMedia(check.ID); err != nil {
			r.logger.Error().Err(err).Str("check_id", check.ID).Msg("failed to reconcile alerting_media")
		}
		if err := r.reconcileExpiredMaintenance(check.ID, now); err != nil {
			r.logger.Error().Err(err).Str("check_id", check.ID).Msg("failed to reconcile unscheduled maintenance")
		}
		if err := r.reconcileStateRetention(check.ID); err != nil {
			r.logger.Error().Err(err).Str("check_id", check.ID).Msg("failed to trim state history")
		}
	}
}

// reconcileAlertingMedia drops alerting_media entries that are malformed
// or reference a medium that no longer exists — the invariant is that
// alerting_media only ever names live media.
func (r *Reconciler) reconcileAlertingMedia(checkID string) error {
	return r.store.Lock([]storage.EntityClass{storage.ClassCheck, storage.ClassMedium}, func() error {
		check, err := r.store.GetCheck(checkID)
		if err != nil {
			return err
		}
		if len(check.AlertingMedia) == 0 {
			return nil
		}

		dirty := false
		for key := range check.AlertingMedia {
			_, mediumID, ok := splitAlertingMediaKey(key)
			if !ok {
				delete(check.AlertingMedia, key)
				dirty = true
				continue
			}
			if _, err := r.store.GetMedium(mediumID); err != nil {
				delete(check.AlertingMedia, key)
				dirty = true
				metrics.InvariantViolationsTotal.WithLabelValues("dangling_alerting_medium").Inc()
				r.logger.Warn().Str("check_id", checkID).Str("medium_id", mediumID).Msg("dropped alerting_media entry for missing medium")
			}
		}
		if !dirty {
			return nil
		}
		return r.store.UpdateCheck(check)
	})
}

func splitAlertingMediaKey(key string) (contactID, mediumID string, ok bool) {
	parts := strings.SplitN(key, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// reconcileExpiredMaintenance deletes unscheduled maintenance windows
// whose end has passed and clears is_alerting on the check's routes so
// the next unhealthy sample re-notifies.
func (r *Reconciler) reconcileExpiredMaintenance(checkID string, now time.Time) error {
	return r.store.Lock([]storage.EntityClass{storage.ClassUnscheduledMaintenance, storage.ClassRoute}, func() error {
		windows, err := r.store.ListUnscheduledMaintenanceByCheck(checkID)
		if err != nil {
			return err
		}

		expired := false
		for _, w := range windows {
			if now.Before(w.EndTime) {
				continue
			}
			if err := r.store.DeleteUnscheduledMaintenance(w.ID); err != nil {
				return err
			}
			expired = true
		}
		if !expired {
			return nil
		}

		routes, err := r.store.ListRoutesByCheck(checkID)
		if err != nil {
			return err
		}
		for _, route := range routes {
			if !route.IsAlerting {
				continue
			}
			route.IsAlerting = false
			if err := r.store.UpdateRoute(route); err != nil {
				return err
			}
		}
		return nil
	})
}

// reconcileStateRetention trims a check's State history past the
// configured retention bound.
func (r *Reconciler) reconcileStateRetention(checkID string) error {
	trimmed, err := r.store.TrimStates(checkID, r.stateRetention)
	if err != nil {
		return err
	}
	if trimmed > 0 {
		for i := 0; i < trimmed; i++ {
			metrics.StatesTrimmedTotal.Inc()
		}
	}
	return nil
}
