package resolver

import (
	"fmt"
	"strings"
	"time"

	"github.com/flapjack-io/flapjack/pkg/log"
	"github.com/flapjack-io/flapjack/pkg/metrics"
	"github.com/flapjack-io/flapjack/pkg/storage"
	"github.com/flapjack-io/flapjack/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Enqueuer pushes a persisted alert ID onto its medium's delivery
// queue. dispatch.Dispatcher satisfies this structurally.
type Enqueuer interface {
	Enqueue(medium types.MediumType, alertID string) error
}

// Resolver turns a Notification into the Alert set owed to contacts,
// and keeps a check's Routes materialized against the rule corpus.
type Resolver struct {
	store  storage.Store
	queue  Enqueuer
	logger zerolog.Logger
}

// New creates a Resolver. queue may be nil, in which case Resolve
// persists Alerts but does not enqueue them (useful for tests).
// ResolveTest enqueues through the same queue.
func New(store storage.Store, queue Enqueuer) *Resolver {
	return &Resolver{store: store, queue: queue, logger: log.WithComponent("resolver")}
}

// RecomputeRoutes rebuilds check's Routes from the current rule corpus:
// generic rules match every check; tagged rules match iff their full
// tag set is a subset of the check's tags. Called explicitly rather than
// from hooks; the Processor calls it when it auto-creates a check, and
// no other code path in this module changes a check's tags or rules.
//
// The caller must hold a store.Lock spanning at least ClassCheck,
// ClassRule and ClassRoute; RecomputeRoutes does not lock itself so it
// can be composed inside a wider transaction (the Processor calls it
// while already holding the per-event lock).
func (r *Resolver) RecomputeRoutes(checkID string) error {
	check, err := r.store.GetCheck(checkID)
	if err != nil {
		return fmt.Errorf("get check: %w", err)
	}
	rules, err := r.store.ListRules()
	if err != nil {
		return fmt.Errorf("list rules: %w", err)
	}
	existing, err := r.store.ListRoutesByCheck(checkID)
	if err != nil {
		return fmt.Errorf("list routes: %w", err)
	}

	checkTags := toSet(check.TagIDs)
	matching := map[string]*types.Rule{}
	for _, rule := range rules {
		if ruleMatches(rule, checkTags) {
			matching[rule.ID] = rule
		}
	}

	byRule := make(map[string]*types.Route, len(existing))
	for _, route := range existing {
		byRule[route.RuleID] = route
	}

	for ruleID, route := range byRule {
		if _, ok := matching[ruleID]; !ok {
			if err := r.store.DeleteRoute(route.ID); err != nil {
				return fmt.Errorf("delete stale route: %w", err)
			}
		}
	}

	for ruleID, rule := range matching {
		if _, ok := byRule[ruleID]; ok {
			continue
		}
		route := &types.Route{
			ID:             uuid.New().String(),
			CheckID:        checkID,
			RuleID:         ruleID,
			ContactID:      rule.ContactID,
			ConditionsList: rule.ConditionsList,
			IsAlerting:     false,
		}
		if err := r.store.CreateRoute(route); err != nil {
			return fmt.Errorf("create route: %w", err)
		}
	}

	metrics.RoutesRecomputedTotal.Inc()
	return nil
}

// ruleMatches reports whether rule applies to a check carrying
// checkTags: a generic rule (no tags) always matches; a tagged rule
// matches iff its full tag set is a subset of the check's tags.
func ruleMatches(rule *types.Rule, checkTags map[string]bool) bool {
	if len(rule.TagIDs) == 0 {
		return true
	}
	for _, tag := range rule.TagIDs {
		if !checkTags[tag] {
			return false
		}
	}
	return true
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

// localize converts t into tz, the contact's IANA timezone name, so
// TimeRestriction.Covers evaluates against the contact's local clock
// rather than the server's. An empty or unrecognized tz leaves t as
// UTC rather than failing the notification outright.
func localize(t time.Time, tz string) time.Time {
	if tz == "" {
		return t.UTC()
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return t.UTC()
	}
	return t.In(loc)
}

// Resolve enumerates the Alert set for notif against check's materialized
// Routes, mutating check.AlertingMedia in place (the caller persists the
// Check) and persisting any Route.IsAlerting changes itself. escalated
// indicates the triggering transition was a severity escalation, which
// bypasses the alerting_media de-duplication rule.
//
// The caller must hold a store.Lock spanning at least ClassCheck,
// ClassRoute, ClassRule, ClassContact, ClassMedium and ClassAlert.
func (r *Resolver) Resolve(check *types.Check, notif *types.Notification, escalated bool) ([]*types.Alert, error) {
	switch notif.Type {
	case types.NotificationRecovery:
		return r.resolveRecovery(check, notif)
	case types.NotificationProblem:
		return r.resolveProblem(check, notif, escalated)
	case types.NotificationAcknowledgement:
		return r.resolveAlertingSnapshot(check, notif, types.NotificationAcknowledgement)
	default:
		return nil, fmt.Errorf("resolver: unsupported notification type %q", notif.Type)
	}
}

func (r *Resolver) resolveProblem(check *types.Check, notif *types.Notification, escalated bool) ([]*types.Alert, error) {
	routes, err := r.store.ListRoutesByCheck(check.ID)
	if err != nil {
		return nil, fmt.Errorf("list routes: %w", err)
	}

	var alerts []*types.Alert
	if check.AlertingMedia == nil {
		check.AlertingMedia = map[string]bool{}
	}

	for _, route := range routes {
		if !route.MatchesSeverity(notif.Severity) {
			continue
		}
		rule, err := r.store.GetRule(route.RuleID)
		if err != nil {
			r.logger.Warn().Str("route_id", route.ID).Err(err).Msg("route references missing rule, skipping")
			continue
		}
		contact, err := r.store.GetContact(route.ContactID)
		if err != nil {
			r.logger.Warn().Str("route_id", route.ID).Err(err).Msg("route references missing contact, skipping")
			continue
		}
		if !rule.Active(localize(notif.Timestamp, contact.Timezone)) {
			continue
		}

		routeAlerted := false
		for _, mediumID := range rule.MediumIDs {
			medium, err := r.store.GetMedium(mediumID)
			if err != nil {
				continue
			}
			key := alertingMediaKey(contact.ID, medium.ID)
			if check.AlertingMedia[key] && !escalated {
				continue
			}
			alerts = append(alerts, r.buildAlert(check, contact, medium, notif, types.NotificationProblem))
			check.AlertingMedia[key] = true
			routeAlerted = true
		}

		if routeAlerted && !route.IsAlerting {
			route.IsAlerting = true
			if err := r.store.UpdateRoute(route); err != nil {
				return nil, fmt.Errorf("mark route alerting: %w", err)
			}
		}
	}

	alerts, err = r.applyRollup(check, alerts)
	if err != nil {
		return nil, err
	}
	if err := r.persistAndEnqueue(alerts); err != nil {
		return nil, err
	}
	return alerts, nil
}

// ResolveTest builds and enqueues one Alert per medium owned by contact,
// bypassing routes, rules, and alerting_media entirely. It backs the
// administrative TestNotification operation, which exists to verify a
// contact's delivery configuration rather than to react to a check
// transition.
func (r *Resolver) ResolveTest(check *types.Check, contact *types.Contact, summary string) ([]*types.Alert, error) {
	notif := &types.Notification{
		Type:      types.NotificationTest,
		Severity:  check.Condition,
		Summary:   summary,
		Timestamp: time.Now(),
	}

	var alerts []*types.Alert
	for _, mediumID := range contact.MediumIDs {
		medium, err := r.store.GetMedium(mediumID)
		if err != nil {
			r.logger.Warn().Str("medium_id", mediumID).Err(err).Msg("contact references missing medium, skipping")
			continue
		}
		alerts = append(alerts, r.buildAlert(check, contact, medium, notif, types.NotificationTest))
	}
	if err := r.persistAndEnqueue(alerts); err != nil {
		return nil, err
	}
	return alerts, nil
}

func (r *Resolver) resolveRecovery(check *types.Check, notif *types.Notification) ([]*types.Alert, error) {
	alerts, err := r.resolveAlertingSnapshot(check, notif, types.NotificationRecovery)
	if err != nil {
		return nil, err
	}

	routes, err := r.store.ListRoutesByCheck(check.ID)
	if err != nil {
		return nil, fmt.Errorf("list routes: %w", err)
	}
	for _, route := range routes {
		if !route.IsAlerting {
			continue
		}
		route.IsAlerting = false
		if err := r.store.UpdateRoute(route); err != nil {
			return nil, fmt.Errorf("clear route alerting: %w", err)
		}
	}
	check.AlertingMedia = map[string]bool{}

	return alerts, nil
}

// resolveAlertingSnapshot builds one alert of noteType per (contact,
// medium) pair currently in check.AlertingMedia, without mutating it.
func (r *Resolver) resolveAlertingSnapshot(check *types.Check, notif *types.Notification, noteType types.NotificationType) ([]*types.Alert, error) {
	var alerts []*types.Alert
	for key := range check.AlertingMedia {
		contactID, mediumID, ok := splitAlertingMediaKey(key)
		if !ok {
			continue
		}
		contact, err := r.store.GetContact(contactID)
		if err != nil {
			continue
		}
		medium, err := r.store.GetMedium(mediumID)
		if err != nil {
			continue
		}
		alerts = append(alerts, r.buildAlert(check, contact, medium, notif, noteType))
	}
	if err := r.persistAndEnqueue(alerts); err != nil {
		return nil, err
	}
	return alerts, nil
}

func (r *Resolver) buildAlert(check *types.Check, contact *types.Contact, medium *types.Medium, notif *types.Notification, noteType types.NotificationType) *types.Alert {
	return &types.Alert{
		ID:               uuid.New().String(),
		CheckID:          check.ID,
		ContactID:        contact.ID,
		MediumID:         medium.ID,
		MediumType:       medium.Type,
		Address:          medium.Address,
		NotificationType: noteType,
		Condition:        notif.Severity,
		Summary:          notif.Summary,
		Details:          notif.Details,
		Status:           types.AlertStatusQueued,
		EnqueuedAt:       time.Now(),
	}
}

// applyRollup collapses problem alerts for a medium into a single
// digest once the count of distinct checks alerting it exceeds the
// medium's rollup threshold. current is the check being resolved;
// its in-memory AlertingMedia may not be persisted yet, so it is
// folded into the store scan rather than re-read from disk.
func (r *Resolver) applyRollup(current *types.Check, alerts []*types.Alert) ([]*types.Alert, error) {
	byMedium := map[string][]*types.Alert{}
	var order []string
	for _, a := range alerts {
		if _, seen := byMedium[a.MediumID]; !seen {
			order = append(order, a.MediumID)
		}
		byMedium[a.MediumID] = append(byMedium[a.MediumID], a)
	}

	var result []*types.Alert
	for _, mediumID := range order {
		group := byMedium[mediumID]
		medium, err := r.store.GetMedium(mediumID)
		if err != nil || medium.RollupThreshold <= 0 {
			result = append(result, group...)
			continue
		}

		checkIDs, err := r.checksAlertingMedium(current, mediumID)
		if err != nil {
			result = append(result, group...)
			continue
		}
		if len(checkIDs) <= medium.RollupThreshold {
			result = append(result, group...)
			continue
		}

		first := group[0]
		rollup := &types.Alert{
			ID:               uuid.New().String(),
			CheckID:          first.CheckID,
			ContactID:        first.ContactID,
			MediumID:         first.MediumID,
			MediumType:       first.MediumType,
			Address:          first.Address,
			NotificationType: first.NotificationType,
			Condition:        first.Condition,
			Summary:          rollupSummary(checkIDs),
			Status:           types.AlertStatusQueued,
			EnqueuedAt:       time.Now(),
			Rollup:           true,
			RollupCheckIDs:   checkIDs,
		}
		result = append(result, rollup)
	}
	return result, nil
}

func rollupSummary(checkIDs []string) string {
	const maxShown = 5
	shown := checkIDs
	more := 0
	if len(shown) > maxShown {
		more = len(shown) - maxShown
		shown = shown[:maxShown]
	}
	summary := fmt.Sprintf("%d checks alerting: %s", len(checkIDs), strings.Join(shown, ", "))
	if more > 0 {
		summary += fmt.Sprintf(", +%d more", more)
	}
	return summary
}

// checksAlertingMedium returns the IDs of checks currently alerting
// mediumID, substituting current's in-memory AlertingMedia for
// whatever is persisted for it (the caller mutates it before the
// Check is saved).
func (r *Resolver) checksAlertingMedium(current *types.Check, mediumID string) ([]string, error) {
	checks, err := r.store.ListChecks()
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	var ids []string
	addIfAlerting := func(id string, media map[string]bool) {
		if seen[id] {
			return
		}
		for key := range media {
			_, mID, ok := splitAlertingMediaKey(key)
			if ok && mID == mediumID {
				ids = append(ids, id)
				seen[id] = true
				return
			}
		}
	}

	for _, c := range checks {
		if c.ID == current.ID {
			continue
		}
		addIfAlerting(c.ID, c.AlertingMedia)
	}
	addIfAlerting(current.ID, current.AlertingMedia)
	return ids, nil
}

func (r *Resolver) persistAndEnqueue(alerts []*types.Alert) error {
	for _, alert := range alerts {
		if err := r.store.CreateAlert(alert); err != nil {
			return fmt.Errorf("create alert: %w", err)
		}
		metrics.AlertsEnqueuedTotal.WithLabelValues(string(alert.MediumType)).Inc()
		if r.queue != nil {
			if err := r.queue.Enqueue(alert.MediumType, alert.ID); err != nil {
				return fmt.Errorf("enqueue alert: %w", err)
			}
		}
	}
	return nil
}

func alertingMediaKey(contactID, mediumID string) string {
	return contactID + ":" + mediumID
}

func splitAlertingMediaKey(key string) (contactID, mediumID string, ok bool) {
	parts := strings.SplitN(key, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
