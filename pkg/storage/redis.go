package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/flapjack-io/flapjack/pkg/types"
	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store against a Redis (or Redis-protocol
// compatible) server — the reference deployment backend. Entities are
// stored as JSON blobs under "<class>:<id>" keys; States live only in a
// per-check sorted set scored by their creation time so
// ListStatesByCheck/TrimStates don't need a full scan; the few
// by-field lookups (GetCheckByName, ListRoutesByCheck, ...) are backed
// by auxiliary Redis sets and name hashes kept in sync on write.
type RedisStore struct {
	client *redis.Client
	*classLocker
}

// NewRedisStore wraps an already-configured go-redis client. Callers
// own the client's lifecycle beyond Close, which is a passthrough.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, classLocker: newClassLocker()}
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func entityKey(class EntityClass, id string) string {
	return string(class) + ":" + id
}

func (s *RedisStore) putJSON(ctx context.Context, class EntityClass, id string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, entityKey(class, id), data, 0).Err()
}

func (s *RedisStore) getJSON(ctx context.Context, class EntityClass, id string, v interface{}) error {
	data, err := s.client.Get(ctx, entityKey(class, id)).Bytes()
	if err == redis.Nil {
		return fmt.Errorf("%w: %s %s", ErrNotFound, class, id)
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func (s *RedisStore) scanClass(ctx context.Context, class EntityClass, fn func(data []byte) error) error {
	iter := s.client.Scan(ctx, 0, string(class)+":*", 0).Iterator()
	for iter.Next(ctx) {
		data, err := s.client.Get(ctx, iter.Val()).Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return err
		}
		if err := fn(data); err != nil {
			return err
		}
	}
	return iter.Err()
}

// --- Checks ---

func (s *RedisStore) CreateCheck(check *types.Check) error {
	ctx := context.Background()
	if err := s.putJSON(ctx, ClassCheck, check.ID, check); err != nil {
		return err
	}
	return s.client.HSet(ctx, "index:check_name", check.Name, check.ID).Err()
}

func (s *RedisStore) GetCheck(id string) (*types.Check, error) {
	var check types.Check
	if err := s.getJSON(context.Background(), ClassCheck, id, &check); err != nil {
		return nil, err
	}
	return &check, nil
}

func (s *RedisStore) GetCheckByName(name string) (*types.Check, error) {
	ctx := context.Background()
	id, err := s.client.HGet(ctx, "index:check_name", name).Result()
	if err == redis.Nil {
		return nil, fmt.Errorf("%w: check %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	return s.GetCheck(id)
}

func (s *RedisStore) ListChecks() ([]*types.Check, error) {
	var checks []*types.Check
	err := s.scanClass(context.Background(), ClassCheck, func(data []byte) error {
		var c types.Check
		if err := json.Unmarshal(data, &c); err != nil {
			return err
		}
		checks = append(checks, &c)
		return nil
	})
	return checks, err
}

func (s *RedisStore) UpdateCheck(check *types.Check) error {
	return s.CreateCheck(check)
}

func (s *RedisStore) DeleteCheck(id string) error {
	ctx := context.Background()
	check, err := s.GetCheck(id)
	if err == nil {
		s.client.HDel(ctx, "index:check_name", check.Name)
	}
	return s.client.Del(ctx, entityKey(ClassCheck, id)).Err()
}

// --- States ---

func statesKey(checkID string) string {
	return "states:" + checkID
}

func (s *RedisStore) AppendState(state *types.State) error {
	ctx := context.Background()
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	score := float64(state.CreatedAt.UnixNano())
	return s.client.ZAdd(ctx, statesKey(state.CheckID), redis.Z{Score: score, Member: data}).Err()
}

func (s *RedisStore) ListStatesByCheck(checkID string, limit int) ([]*types.State, error) {
	ctx := context.Background()
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	members, err := s.client.ZRevRange(ctx, statesKey(checkID), 0, stop).Result()
	if err != nil {
		return nil, err
	}
	states := make([]*types.State, 0, len(members))
	for _, m := range members {
		var st types.State
		if err := json.Unmarshal([]byte(m), &st); err != nil {
			return nil, err
		}
		states = append(states, &st)
	}
	return states, nil
}

func (s *RedisStore) TrimStates(checkID string, keep int) (int, error) {
	ctx := context.Background()
	key := statesKey(checkID)
	total, err := s.client.ZCard(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if total <= int64(keep) {
		return 0, nil
	}
	toRemove := total - int64(keep)
	removed, err := s.client.ZRemRangeByRank(ctx, key, 0, toRemove-1).Result()
	return int(removed), err
}

// --- Scheduled maintenance ---

func (s *RedisStore) CreateScheduledMaintenance(m *types.ScheduledMaintenance) error {
	ctx := context.Background()
	if err := s.putJSON(ctx, ClassScheduledMaintenance, m.ID, m); err != nil {
		return err
	}
	return s.client.SAdd(ctx, "index:sched_by_check:"+m.CheckID, m.ID).Err()
}

func (s *RedisStore) GetScheduledMaintenance(id string) (*types.ScheduledMaintenance, error) {
	var m types.ScheduledMaintenance
	if err := s.getJSON(context.Background(), ClassScheduledMaintenance, id, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *RedisStore) ListScheduledMaintenanceByCheck(checkID string) ([]*types.ScheduledMaintenance, error) {
	ctx := context.Background()
	ids, err := s.client.SMembers(ctx, "index:sched_by_check:"+checkID).Result()
	if err != nil {
		return nil, err
	}
	var windows []*types.ScheduledMaintenance
	for _, id := range ids {
		m, err := s.GetScheduledMaintenance(id)
		if err != nil {
			continue
		}
		windows = append(windows, m)
	}
	return windows, nil
}

func (s *RedisStore) UpdateScheduledMaintenance(m *types.ScheduledMaintenance) error {
	return s.putJSON(context.Background(), ClassScheduledMaintenance, m.ID, m)
}

func (s *RedisStore) DeleteScheduledMaintenance(id string) error {
	ctx := context.Background()
	m, err := s.GetScheduledMaintenance(id)
	if err == nil {
		s.client.SRem(ctx, "index:sched_by_check:"+m.CheckID, id)
	}
	return s.client.Del(ctx, entityKey(ClassScheduledMaintenance, id)).Err()
}

// --- Unscheduled maintenance ---

func (s *RedisStore) CreateUnscheduledMaintenance(m *types.UnscheduledMaintenance) error {
	ctx := context.Background()
	if err := s.putJSON(ctx, ClassUnscheduledMaintenance, m.ID, m); err != nil {
		return err
	}
	return s.client.SAdd(ctx, "index:unsched_by_check:"+m.CheckID, m.ID).Err()
}

func (s *RedisStore) GetUnscheduledMaintenance(id string) (*types.UnscheduledMaintenance, error) {
	var m types.UnscheduledMaintenance
	if err := s.getJSON(context.Background(), ClassUnscheduledMaintenance, id, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *RedisStore) CurrentUnscheduledMaintenance(checkID string) (*types.UnscheduledMaintenance, error) {
	windows, err := s.ListUnscheduledMaintenanceByCheck(checkID)
	if err != nil {
		return nil, err
	}
	if len(windows) == 0 {
		return nil, nil
	}
	return windows[0], nil
}

func (s *RedisStore) ListUnscheduledMaintenanceByCheck(checkID string) ([]*types.UnscheduledMaintenance, error) {
	ctx := context.Background()
	ids, err := s.client.SMembers(ctx, "index:unsched_by_check:"+checkID).Result()
	if err != nil {
		return nil, err
	}
	var windows []*types.UnscheduledMaintenance
	for _, id := range ids {
		m, err := s.GetUnscheduledMaintenance(id)
		if err != nil {
			continue
		}
		windows = append(windows, m)
	}
	return windows, nil
}

func (s *RedisStore) UpdateUnscheduledMaintenance(m *types.UnscheduledMaintenance) error {
	return s.putJSON(context.Background(), ClassUnscheduledMaintenance, m.ID, m)
}

func (s *RedisStore) DeleteUnscheduledMaintenance(id string) error {
	ctx := context.Background()
	m, err := s.GetUnscheduledMaintenance(id)
	if err == nil {
		s.client.SRem(ctx, "index:unsched_by_check:"+m.CheckID, id)
	}
	return s.client.Del(ctx, entityKey(ClassUnscheduledMaintenance, id)).Err()
}

// --- Tags ---

func (s *RedisStore) CreateTag(tag *types.Tag) error {
	ctx := context.Background()
	if err := s.putJSON(ctx, ClassTag, tag.ID, tag); err != nil {
		return err
	}
	return s.client.HSet(ctx, "index:tag_name", tag.Name, tag.ID).Err()
}

func (s *RedisStore) GetTag(id string) (*types.Tag, error) {
	var tag types.Tag
	if err := s.getJSON(context.Background(), ClassTag, id, &tag); err != nil {
		return nil, err
	}
	return &tag, nil
}

func (s *RedisStore) GetTagByName(name string) (*types.Tag, error) {
	ctx := context.Background()
	id, err := s.client.HGet(ctx, "index:tag_name", name).Result()
	if err == redis.Nil {
		return nil, fmt.Errorf("%w: tag %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	return s.GetTag(id)
}

func (s *RedisStore) ListTags() ([]*types.Tag, error) {
	var tags []*types.Tag
	err := s.scanClass(context.Background(), ClassTag, func(data []byte) error {
		var t types.Tag
		if err := json.Unmarshal(data, &t); err != nil {
			return err
		}
		tags = append(tags, &t)
		return nil
	})
	return tags, err
}

// --- Contacts ---

func (s *RedisStore) CreateContact(c *types.Contact) error {
	return s.putJSON(context.Background(), ClassContact, c.ID, c)
}

func (s *RedisStore) GetContact(id string) (*types.Contact, error) {
	var c types.Contact
	if err := s.getJSON(context.Background(), ClassContact, id, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *RedisStore) ListContacts() ([]*types.Contact, error) {
	var contacts []*types.Contact
	err := s.scanClass(context.Background(), ClassContact, func(data []byte) error {
		var c types.Contact
		if err := json.Unmarshal(data, &c); err != nil {
			return err
		}
		contacts = append(contacts, &c)
		return nil
	})
	return contacts, err
}

func (s *RedisStore) UpdateContact(c *types.Contact) error {
	return s.CreateContact(c)
}

func (s *RedisStore) DeleteContact(id string) error {
	return s.client.Del(context.Background(), entityKey(ClassContact, id)).Err()
}

// --- Media ---

func (s *RedisStore) CreateMedium(m *types.Medium) error {
	ctx := context.Background()
	if err := s.putJSON(ctx, ClassMedium, m.ID, m); err != nil {
		return err
	}
	return s.client.SAdd(ctx, "index:media_by_contact:"+m.ContactID, m.ID).Err()
}

func (s *RedisStore) GetMedium(id string) (*types.Medium, error) {
	var m types.Medium
	if err := s.getJSON(context.Background(), ClassMedium, id, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *RedisStore) ListMediaByContact(contactID string) ([]*types.Medium, error) {
	ctx := context.Background()
	ids, err := s.client.SMembers(ctx, "index:media_by_contact:"+contactID).Result()
	if err != nil {
		return nil, err
	}
	var media []*types.Medium
	for _, id := range ids {
		m, err := s.GetMedium(id)
		if err != nil {
			continue
		}
		media = append(media, m)
	}
	return media, nil
}

func (s *RedisStore) UpdateMedium(m *types.Medium) error {
	return s.putJSON(context.Background(), ClassMedium, m.ID, m)
}

func (s *RedisStore) DeleteMedium(id string) error {
	ctx := context.Background()
	m, err := s.GetMedium(id)
	if err == nil {
		s.client.SRem(ctx, "index:media_by_contact:"+m.ContactID, id)
	}
	return s.client.Del(ctx, entityKey(ClassMedium, id)).Err()
}

// --- Rules ---

func (s *RedisStore) CreateRule(r *types.Rule) error {
	ctx := context.Background()
	if err := s.putJSON(ctx, ClassRule, r.ID, r); err != nil {
		return err
	}
	return s.client.SAdd(ctx, "index:rules_by_contact:"+r.ContactID, r.ID).Err()
}

func (s *RedisStore) GetRule(id string) (*types.Rule, error) {
	var r types.Rule
	if err := s.getJSON(context.Background(), ClassRule, id, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *RedisStore) ListRules() ([]*types.Rule, error) {
	var rules []*types.Rule
	err := s.scanClass(context.Background(), ClassRule, func(data []byte) error {
		var r types.Rule
		if err := json.Unmarshal(data, &r); err != nil {
			return err
		}
		rules = append(rules, &r)
		return nil
	})
	return rules, err
}

func (s *RedisStore) ListRulesByContact(contactID string) ([]*types.Rule, error) {
	ctx := context.Background()
	ids, err := s.client.SMembers(ctx, "index:rules_by_contact:"+contactID).Result()
	if err != nil {
		return nil, err
	}
	var rules []*types.Rule
	for _, id := range ids {
		r, err := s.GetRule(id)
		if err != nil {
			continue
		}
		rules = append(rules, r)
	}
	return rules, nil
}

func (s *RedisStore) UpdateRule(r *types.Rule) error {
	return s.putJSON(context.Background(), ClassRule, r.ID, r)
}

func (s *RedisStore) DeleteRule(id string) error {
	ctx := context.Background()
	r, err := s.GetRule(id)
	if err == nil {
		s.client.SRem(ctx, "index:rules_by_contact:"+r.ContactID, id)
	}
	return s.client.Del(ctx, entityKey(ClassRule, id)).Err()
}

// --- Routes ---

func (s *RedisStore) CreateRoute(r *types.Route) error {
	ctx := context.Background()
	if err := s.putJSON(ctx, ClassRoute, r.ID, r); err != nil {
		return err
	}
	if err := s.client.SAdd(ctx, "index:routes_by_check:"+r.CheckID, r.ID).Err(); err != nil {
		return err
	}
	return s.client.SAdd(ctx, "index:routes_by_rule:"+r.RuleID, r.ID).Err()
}

func (s *RedisStore) GetRoute(id string) (*types.Route, error) {
	var r types.Route
	if err := s.getJSON(context.Background(), ClassRoute, id, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *RedisStore) ListRoutesByCheck(checkID string) ([]*types.Route, error) {
	return s.routesByIndex("index:routes_by_check:" + checkID)
}

func (s *RedisStore) ListRoutesByRule(ruleID string) ([]*types.Route, error) {
	return s.routesByIndex("index:routes_by_rule:" + ruleID)
}

func (s *RedisStore) routesByIndex(indexKey string) ([]*types.Route, error) {
	ctx := context.Background()
	ids, err := s.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, err
	}
	var routes []*types.Route
	for _, id := range ids {
		r, err := s.GetRoute(id)
		if err != nil {
			continue
		}
		routes = append(routes, r)
	}
	return routes, nil
}

func (s *RedisStore) UpdateRoute(r *types.Route) error {
	return s.putJSON(context.Background(), ClassRoute, r.ID, r)
}

func (s *RedisStore) DeleteRoute(id string) error {
	ctx := context.Background()
	r, err := s.GetRoute(id)
	if err == nil {
		s.client.SRem(ctx, "index:routes_by_check:"+r.CheckID, id)
		s.client.SRem(ctx, "index:routes_by_rule:"+r.RuleID, id)
	}
	return s.client.Del(ctx, entityKey(ClassRoute, id)).Err()
}

func (s *RedisStore) DeleteRoutesByCheck(checkID string) error {
	routes, err := s.ListRoutesByCheck(checkID)
	if err != nil {
		return err
	}
	for _, r := range routes {
		if err := s.DeleteRoute(r.ID); err != nil {
			return err
		}
	}
	return nil
}

// --- Notifications ---

func (s *RedisStore) CreateNotification(n *types.Notification) error {
	return nil
}

// --- Alerts ---

func (s *RedisStore) CreateAlert(a *types.Alert) error {
	ctx := context.Background()
	if err := s.putJSON(ctx, ClassAlert, a.ID, a); err != nil {
		return err
	}
	if a.Status == types.AlertStatusQueued {
		return s.client.SAdd(ctx, "queue:"+string(a.MediumType), a.ID).Err()
	}
	return nil
}

func (s *RedisStore) GetAlert(id string) (*types.Alert, error) {
	var a types.Alert
	if err := s.getJSON(context.Background(), ClassAlert, id, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *RedisStore) UpdateAlert(a *types.Alert) error {
	ctx := context.Background()
	if err := s.putJSON(ctx, ClassAlert, a.ID, a); err != nil {
		return err
	}
	queueKey := "queue:" + string(a.MediumType)
	if a.Status == types.AlertStatusQueued {
		return s.client.SAdd(ctx, queueKey, a.ID).Err()
	}
	return s.client.SRem(ctx, queueKey, a.ID).Err()
}

func (s *RedisStore) DeleteAlert(id string) error {
	ctx := context.Background()
	a, err := s.GetAlert(id)
	if err == nil {
		s.client.SRem(ctx, "queue:"+string(a.MediumType), id)
	}
	return s.client.Del(ctx, entityKey(ClassAlert, id)).Err()
}

func (s *RedisStore) ListQueuedAlertsByMedium(mediumType types.MediumType) ([]*types.Alert, error) {
	ctx := context.Background()
	ids, err := s.client.SMembers(ctx, "queue:"+string(mediumType)).Result()
	if err != nil {
		return nil, err
	}
	var alerts []*types.Alert
	for _, id := range ids {
		a, err := s.GetAlert(id)
		if err != nil {
			continue
		}
		alerts = append(alerts, a)
	}
	return alerts, nil
}
