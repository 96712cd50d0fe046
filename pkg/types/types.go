package types

import (
	"crypto/sha1"
	"encoding/hex"
	"time"
)

// Condition represents the health token of a check.
type Condition string

const (
	ConditionOK       Condition = "ok"
	ConditionWarning  Condition = "warning"
	ConditionCritical Condition = "critical"
	ConditionUnknown  Condition = "unknown"
)

// severityRank orders conditions for escalation comparisons. Healthy
// conditions are not ranked here; callers must check Unhealthy first.
var severityRank = map[Condition]int{
	ConditionUnknown:  1,
	ConditionWarning:  2,
	ConditionCritical: 3,
}

// Unhealthy reports whether a condition is a failure state.
func Unhealthy(c Condition) bool {
	return c != ConditionOK
}

// Worse reports whether b is strictly more severe than a. Both must be
// unhealthy conditions; behaviour for healthy input is undefined.
func Worse(a, b Condition) bool {
	return severityRank[b] > severityRank[a]
}

// Check is the monitored entity: a named service or action tracked
// across a stream of State samples.
type Check struct {
	ID                  string
	Name                string // unique, "entity:check" or bare "entity"
	Enabled             bool
	Condition           Condition
	Failing             bool
	NotificationCount   int
	InitialFailureDelay time.Duration
	RepeatFailureDelay  time.Duration
	AckHash             string // first 8 hex chars of sha1(ID), stable across renames

	FailingSince  time.Time // zero if not currently failing
	MostSevere    Condition // most severe condition seen in the current failure episode
	AlertingMedia map[string]bool // set of "contactID:mediumID" currently alerting

	LastNotificationAt time.Time // when the last problem notification was emitted

	TagIDs []string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewAckHash derives a Check's stable acknowledgement token from its ID.
func NewAckHash(checkID string) string {
	sum := sha1.Sum([]byte(checkID))
	return hex.EncodeToString(sum[:])[:8]
}

// State is one immutable sample in a check's history.
type State struct {
	ID        string
	CheckID   string
	Condition Condition
	CreatedAt time.Time
	Summary   string
	Details   string
}

// ScheduledMaintenance is a pre-declared suppression window. Overlapping
// scheduled windows on the same check are permitted.
type ScheduledMaintenance struct {
	ID        string
	CheckID   string
	StartTime time.Time
	EndTime   time.Time
	Summary   string
}

// Active reports whether the window covers t ([start, end)).
func (m *ScheduledMaintenance) Active(t time.Time) bool {
	return !t.Before(m.StartTime) && t.Before(m.EndTime)
}

// UnscheduledMaintenance is an acknowledgement-derived suppression
// window. At most one may be open per check at a time.
type UnscheduledMaintenance struct {
	ID        string
	CheckID   string
	StartTime time.Time
	EndTime   time.Time
	Summary   string
}

// Active reports whether the window covers t ([start, end)).
func (m *UnscheduledMaintenance) Active(t time.Time) bool {
	return !t.Before(m.StartTime) && t.Before(m.EndTime)
}

// Tag is a free-form label joining checks and rules.
type Tag struct {
	ID   string
	Name string
}

// Contact is a human recipient owning a set of Media and Rules.
type Contact struct {
	ID        string
	Name      string
	Timezone  string // IANA zone name, used to evaluate rule time restrictions
	MediumIDs []string
	RuleIDs   []string
}

// MediumType enumerates supported delivery channels.
type MediumType string

const (
	MediumEmail     MediumType = "email"
	MediumSMS       MediumType = "sms"
	MediumSMSNexmo  MediumType = "sms_nexmo"
	MediumSNS       MediumType = "sns"
	MediumPagerDuty MediumType = "pagerduty"
	MediumJabber    MediumType = "jabber"
	MediumSlack     MediumType = "slack"
)

// Medium is a delivery channel owned by a Contact.
type Medium struct {
	ID              string
	ContactID       string
	Type            MediumType
	Address         string
	RolloverPeriod  time.Duration // minimum interval between identical alerts
	RollupThreshold int           // 0 disables rollup
}

// TimeRestriction is one cron-like active interval in a contact's
// timezone, expressed as a weekly recurrence.
type TimeRestriction struct {
	Weekday   time.Weekday
	StartHour int // 0-23, inclusive
	StartMin  int
	EndHour   int // 0-23
	EndMin    int
}

// Covers reports whether t (already converted to the contact's
// timezone) falls within the restriction.
func (r TimeRestriction) Covers(t time.Time) bool {
	if t.Weekday() != r.Weekday {
		return false
	}
	mins := t.Hour()*60 + t.Minute()
	start := r.StartHour*60 + r.StartMin
	end := r.EndHour*60 + r.EndMin
	return mins >= start && mins < end
}

// Rule is a contact's routing policy.
type Rule struct {
	ID               string
	ContactID        string
	ConditionsList   []Condition // empty means "any unhealthy"
	TagIDs           []string    // empty means generic (matches every check)
	TimeRestrictions []TimeRestriction
	MediumIDs        []string
}

// MatchesSeverity reports whether the rule's condition filter admits c.
func (r *Rule) MatchesSeverity(c Condition) bool {
	if len(r.ConditionsList) == 0 {
		return Unhealthy(c)
	}
	for _, want := range r.ConditionsList {
		if want == c {
			return true
		}
	}
	return false
}

// Active reports whether the rule's time restrictions admit t. A rule
// with no restrictions is always active.
func (r *Rule) Active(t time.Time) bool {
	if len(r.TimeRestrictions) == 0 {
		return true
	}
	for _, tr := range r.TimeRestrictions {
		if tr.Covers(t) {
			return true
		}
	}
	return false
}

// Route is the materialized join of a Rule with a matching Check.
type Route struct {
	ID             string
	CheckID        string
	RuleID         string
	ContactID      string
	ConditionsList []Condition
	IsAlerting     bool
}

// MatchesSeverity reports whether the route admits condition c. An
// empty ConditionsList matches any unhealthy condition.
func (r *Route) MatchesSeverity(c Condition) bool {
	if len(r.ConditionsList) == 0 {
		return Unhealthy(c)
	}
	for _, want := range r.ConditionsList {
		if want == c {
			return true
		}
	}
	return false
}

// NotificationType enumerates the kinds of alert an Alert can carry.
type NotificationType string

const (
	NotificationProblem              NotificationType = "problem"
	NotificationAcknowledgement      NotificationType = "acknowledgement"
	NotificationRecovery             NotificationType = "recovery"
	NotificationScheduledMaintenance NotificationType = "scheduled_maintenance"
	NotificationTest                 NotificationType = "test"
)

// Notification is an internal work item emitted by the Processor when a
// check's transition warrants downstream delivery.
type Notification struct {
	ID        string
	CheckID   string
	StateID   string
	Type      NotificationType
	Severity  Condition
	Summary   string
	Details   string
	Timestamp time.Time
}

// AlertStatus tracks an Alert's disposition in the dispatch pipeline.
type AlertStatus string

const (
	AlertStatusQueued    AlertStatus = "queued"
	AlertStatusDelivered AlertStatus = "delivered"
	AlertStatusFailed    AlertStatus = "failed" // permanently failed
)

// Alert is a dispatchable work item targeted at one (contact, medium).
type Alert struct {
	ID               string
	CheckID          string
	ContactID        string
	MediumID         string
	MediumType       MediumType
	Address          string
	NotificationType NotificationType
	Condition        Condition
	Summary          string
	Details          string
	Attempts         int
	Status           AlertStatus
	EnqueuedAt       time.Time
	Rollup           bool     // true if this alert is a digest of multiple checks
	RollupCheckIDs   []string // checks summarized, when Rollup is true
}

// RawEvent is the wire shape of an inbound queue entry, per the
// entity/check naming and action-specific fields.
type RawEvent struct {
	Entity               string            `json:"entity"`
	Check                string            `json:"check,omitempty"`
	Type                 string            `json:"type"`
	State                string            `json:"state"`
	Summary              string            `json:"summary"`
	Details              string            `json:"details,omitempty"`
	Time                 int64             `json:"time"`
	InitialFailureDelay  *int              `json:"initial_failure_delay,omitempty"`
	RepeatFailureDelay   *int              `json:"repeat_failure_delay,omitempty"`
	Tags                 []string          `json:"tags,omitempty"`
	AcknowledgementID    string            `json:"acknowledgement_id,omitempty"`
	Duration             *int64            `json:"duration,omitempty"`
	Metadata             map[string]string `json:"metadata,omitempty"`
}

// EventType enumerates the RawEvent.Type vocabulary.
const (
	EventTypeService = "service"
	EventTypeAction  = "action"
	EventTypeMetric  = "metric"
)

// CheckName returns the combined "entity:check" name, or bare entity if
// no sub-check identifier is present.
func (e *RawEvent) CheckName() string {
	if e.Check == "" {
		return e.Entity
	}
	return e.Entity + ":" + e.Check
}
