package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/flapjack-io/flapjack/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketChecks                 = []byte("checks")
	bucketStates                 = []byte("states")
	bucketScheduledMaintenances   = []byte("scheduled_maintenances")
	bucketUnscheduledMaintenances = []byte("unscheduled_maintenances")
	bucketTags                    = []byte("tags")
	bucketContacts                = []byte("contacts")
	bucketMedia                   = []byte("media")
	bucketRules                   = []byte("rules")
	bucketRoutes                  = []byte("routes")
	bucketAlerts                  = []byte("alerts")
)

// BoltStore implements Store using an embedded bbolt database.
type BoltStore struct {
	db *bolt.DB
	*classLocker
}

// NewBoltStore opens (or creates) the database file under dataDir.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "flapjack.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketChecks,
			bucketStates,
			bucketScheduledMaintenances,
			bucketUnscheduledMaintenances,
			bucketTags,
			bucketContacts,
			bucketMedia,
			bucketRules,
			bucketRoutes,
			bucketAlerts,
		}
		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db, classLocker: newClassLocker()}, nil
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// --- Checks ---

func (s *BoltStore) CreateCheck(check *types.Check) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketChecks)
		data, err := json.Marshal(check)
		if err != nil {
			return err
		}
		return b.Put([]byte(check.ID), data)
	})
}

func (s *BoltStore) GetCheck(id string) (*types.Check, error) {
	var check types.Check
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketChecks)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: check %s", ErrNotFound, id)
		}
		return json.Unmarshal(data, &check)
	})
	if err != nil {
		return nil, err
	}
	return &check, nil
}

func (s *BoltStore) GetCheckByName(name string) (*types.Check, error) {
	var found *types.Check
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketChecks)
		return b.ForEach(func(_, v []byte) error {
			var check types.Check
			if err := json.Unmarshal(v, &check); err != nil {
				return err
			}
			if check.Name == name {
				found = &check
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("%w: check %s", ErrNotFound, name)
	}
	return found, nil
}

func (s *BoltStore) ListChecks() ([]*types.Check, error) {
	var checks []*types.Check
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketChecks)
		return b.ForEach(func(_, v []byte) error {
			var check types.Check
			if err := json.Unmarshal(v, &check); err != nil {
				return err
			}
			checks = append(checks, &check)
			return nil
		})
	})
	return checks, err
}

func (s *BoltStore) UpdateCheck(check *types.Check) error {
	return s.CreateCheck(check)
}

func (s *BoltStore) DeleteCheck(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketChecks).Delete([]byte(id))
	})
}

// --- States ---
//
// State keys are "<checkID>/<createdAt ns big-endian>/<id>" so that a
// bucket cursor scoped to a check's prefix yields states in creation
// order without a separate index. CreatedAt comes from the event's
// whole-second timestamp, not wall-clock time, so two distinct states
// for the same check can share a timestamp; the id suffix keeps each
// its own key instead of one silently overwriting the other.
func stateKey(checkID string, createdAtNanos int64, id string) []byte {
	key := make([]byte, 0, len(checkID)+1+8+1+len(id))
	key = append(key, []byte(checkID)...)
	key = append(key, '/')
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(createdAtNanos))
	key = append(key, ts[:]...)
	key = append(key, '/')
	return append(key, []byte(id)...)
}

func (s *BoltStore) AppendState(state *types.State) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketStates)
		data, err := json.Marshal(state)
		if err != nil {
			return err
		}
		return b.Put(stateKey(state.CheckID, state.CreatedAt.UnixNano(), state.ID), data)
	})
}

// ListStatesByCheck returns up to limit most recent states, newest
// first. limit <= 0 means unbounded.
func (s *BoltStore) ListStatesByCheck(checkID string, limit int) ([]*types.State, error) {
	var states []*types.State
	prefix := []byte(checkID + "/")
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketStates).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if !hasPrefix(k, prefix) {
				if k != nil && string(k) > string(prefix) {
					continue
				}
				break
			}
			var state types.State
			if err := json.Unmarshal(v, &state); err != nil {
				return err
			}
			states = append(states, &state)
			if limit > 0 && len(states) >= limit {
				break
			}
		}
		return nil
	})
	return states, err
}

// TrimStates deletes all but the keep most recent states for a check,
// returning the number deleted.
func (s *BoltStore) TrimStates(checkID string, keep int) (int, error) {
	deleted := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketStates)
		prefix := []byte(checkID + "/")
		var keys [][]byte
		c := b.Cursor()
		for k, _ := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, _ = c.Next() {
			keyCopy := make([]byte, len(k))
			copy(keyCopy, k)
			keys = append(keys, keyCopy)
		}
		if len(keys) <= keep {
			return nil
		}
		toDelete := keys[:len(keys)-keep]
		for _, k := range toDelete {
			if err := b.Delete(k); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})
	return deleted, err
}

func hasPrefix(b, prefix []byte) bool {
	if len(b) < len(prefix) {
		return false
	}
	for i := range prefix {
		if b[i] != prefix[i] {
			return false
		}
	}
	return true
}

// --- Scheduled maintenance ---

func (s *BoltStore) CreateScheduledMaintenance(m *types.ScheduledMaintenance) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(m)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketScheduledMaintenances).Put([]byte(m.ID), data)
	})
}

func (s *BoltStore) GetScheduledMaintenance(id string) (*types.ScheduledMaintenance, error) {
	var m types.ScheduledMaintenance
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketScheduledMaintenances).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: scheduled maintenance %s", ErrNotFound, id)
		}
		return json.Unmarshal(data, &m)
	})
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *BoltStore) ListScheduledMaintenanceByCheck(checkID string) ([]*types.ScheduledMaintenance, error) {
	var windows []*types.ScheduledMaintenance
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketScheduledMaintenances).ForEach(func(_, v []byte) error {
			var m types.ScheduledMaintenance
			if err := json.Unmarshal(v, &m); err != nil {
				return err
			}
			if m.CheckID == checkID {
				windows = append(windows, &m)
			}
			return nil
		})
	})
	return windows, err
}

func (s *BoltStore) UpdateScheduledMaintenance(m *types.ScheduledMaintenance) error {
	return s.CreateScheduledMaintenance(m)
}

func (s *BoltStore) DeleteScheduledMaintenance(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketScheduledMaintenances).Delete([]byte(id))
	})
}

// --- Unscheduled maintenance ---

func (s *BoltStore) CreateUnscheduledMaintenance(m *types.UnscheduledMaintenance) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(m)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketUnscheduledMaintenances).Put([]byte(m.ID), data)
	})
}

func (s *BoltStore) GetUnscheduledMaintenance(id string) (*types.UnscheduledMaintenance, error) {
	var m types.UnscheduledMaintenance
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketUnscheduledMaintenances).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: unscheduled maintenance %s", ErrNotFound, id)
		}
		return json.Unmarshal(data, &m)
	})
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// CurrentUnscheduledMaintenance returns the single open window for a
// check, or nil if none exists. At most one may exist by invariant.
func (s *BoltStore) CurrentUnscheduledMaintenance(checkID string) (*types.UnscheduledMaintenance, error) {
	windows, err := s.ListUnscheduledMaintenanceByCheck(checkID)
	if err != nil {
		return nil, err
	}
	if len(windows) == 0 {
		return nil, nil
	}
	return windows[0], nil
}

func (s *BoltStore) ListUnscheduledMaintenanceByCheck(checkID string) ([]*types.UnscheduledMaintenance, error) {
	var windows []*types.UnscheduledMaintenance
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketUnscheduledMaintenances).ForEach(func(_, v []byte) error {
			var m types.UnscheduledMaintenance
			if err := json.Unmarshal(v, &m); err != nil {
				return err
			}
			if m.CheckID == checkID {
				windows = append(windows, &m)
			}
			return nil
		})
	})
	return windows, err
}

func (s *BoltStore) UpdateUnscheduledMaintenance(m *types.UnscheduledMaintenance) error {
	return s.CreateUnscheduledMaintenance(m)
}

func (s *BoltStore) DeleteUnscheduledMaintenance(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketUnscheduledMaintenances).Delete([]byte(id))
	})
}

// --- Tags ---

func (s *BoltStore) CreateTag(tag *types.Tag) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(tag)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketTags).Put([]byte(tag.ID), data)
	})
}

func (s *BoltStore) GetTag(id string) (*types.Tag, error) {
	var tag types.Tag
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketTags).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: tag %s", ErrNotFound, id)
		}
		return json.Unmarshal(data, &tag)
	})
	if err != nil {
		return nil, err
	}
	return &tag, nil
}

func (s *BoltStore) GetTagByName(name string) (*types.Tag, error) {
	var found *types.Tag
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTags).ForEach(func(_, v []byte) error {
			var tag types.Tag
			if err := json.Unmarshal(v, &tag); err != nil {
				return err
			}
			if tag.Name == name {
				found = &tag
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("%w: tag %s", ErrNotFound, name)
	}
	return found, nil
}

func (s *BoltStore) ListTags() ([]*types.Tag, error) {
	var tags []*types.Tag
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTags).ForEach(func(_, v []byte) error {
			var tag types.Tag
			if err := json.Unmarshal(v, &tag); err != nil {
				return err
			}
			tags = append(tags, &tag)
			return nil
		})
	})
	return tags, err
}

// --- Contacts ---

func (s *BoltStore) CreateContact(c *types.Contact) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(c)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketContacts).Put([]byte(c.ID), data)
	})
}

func (s *BoltStore) GetContact(id string) (*types.Contact, error) {
	var c types.Contact
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketContacts).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: contact %s", ErrNotFound, id)
		}
		return json.Unmarshal(data, &c)
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *BoltStore) ListContacts() ([]*types.Contact, error) {
	var contacts []*types.Contact
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketContacts).ForEach(func(_, v []byte) error {
			var c types.Contact
			if err := json.Unmarshal(v, &c); err != nil {
				return err
			}
			contacts = append(contacts, &c)
			return nil
		})
	})
	return contacts, err
}

func (s *BoltStore) UpdateContact(c *types.Contact) error {
	return s.CreateContact(c)
}

func (s *BoltStore) DeleteContact(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketContacts).Delete([]byte(id))
	})
}

// --- Media ---

func (s *BoltStore) CreateMedium(m *types.Medium) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(m)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketMedia).Put([]byte(m.ID), data)
	})
}

func (s *BoltStore) GetMedium(id string) (*types.Medium, error) {
	var m types.Medium
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketMedia).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: medium %s", ErrNotFound, id)
		}
		return json.Unmarshal(data, &m)
	})
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *BoltStore) ListMediaByContact(contactID string) ([]*types.Medium, error) {
	var media []*types.Medium
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMedia).ForEach(func(_, v []byte) error {
			var m types.Medium
			if err := json.Unmarshal(v, &m); err != nil {
				return err
			}
			if m.ContactID == contactID {
				media = append(media, &m)
			}
			return nil
		})
	})
	return media, err
}

func (s *BoltStore) UpdateMedium(m *types.Medium) error {
	return s.CreateMedium(m)
}

func (s *BoltStore) DeleteMedium(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMedia).Delete([]byte(id))
	})
}

// --- Rules ---

func (s *BoltStore) CreateRule(r *types.Rule) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(r)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketRules).Put([]byte(r.ID), data)
	})
}

func (s *BoltStore) GetRule(id string) (*types.Rule, error) {
	var r types.Rule
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketRules).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: rule %s", ErrNotFound, id)
		}
		return json.Unmarshal(data, &r)
	})
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *BoltStore) ListRules() ([]*types.Rule, error) {
	var rules []*types.Rule
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRules).ForEach(func(_, v []byte) error {
			var r types.Rule
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			rules = append(rules, &r)
			return nil
		})
	})
	return rules, err
}

func (s *BoltStore) ListRulesByContact(contactID string) ([]*types.Rule, error) {
	all, err := s.ListRules()
	if err != nil {
		return nil, err
	}
	var filtered []*types.Rule
	for _, r := range all {
		if r.ContactID == contactID {
			filtered = append(filtered, r)
		}
	}
	return filtered, nil
}

func (s *BoltStore) UpdateRule(r *types.Rule) error {
	return s.CreateRule(r)
}

func (s *BoltStore) DeleteRule(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRules).Delete([]byte(id))
	})
}

// --- Routes ---

func (s *BoltStore) CreateRoute(r *types.Route) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(r)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketRoutes).Put([]byte(r.ID), data)
	})
}

func (s *BoltStore) GetRoute(id string) (*types.Route, error) {
	var r types.Route
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketRoutes).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: route %s", ErrNotFound, id)
		}
		return json.Unmarshal(data, &r)
	})
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *BoltStore) ListRoutesByCheck(checkID string) ([]*types.Route, error) {
	var routes []*types.Route
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRoutes).ForEach(func(_, v []byte) error {
			var r types.Route
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			if r.CheckID == checkID {
				routes = append(routes, &r)
			}
			return nil
		})
	})
	return routes, err
}

func (s *BoltStore) ListRoutesByRule(ruleID string) ([]*types.Route, error) {
	var routes []*types.Route
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRoutes).ForEach(func(_, v []byte) error {
			var r types.Route
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			if r.RuleID == ruleID {
				routes = append(routes, &r)
			}
			return nil
		})
	})
	return routes, err
}

func (s *BoltStore) UpdateRoute(r *types.Route) error {
	return s.CreateRoute(r)
}

func (s *BoltStore) DeleteRoute(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRoutes).Delete([]byte(id))
	})
}

func (s *BoltStore) DeleteRoutesByCheck(checkID string) error {
	routes, err := s.ListRoutesByCheck(checkID)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRoutes)
		for _, r := range routes {
			if err := b.Delete([]byte(r.ID)); err != nil {
				return err
			}
		}
		return nil
	})
}

// --- Notifications ---
//
// Notifications are transient work items handed directly from the
// Processor to the Resolver in the same process; they are not kept
// durably once the Resolver has consumed them, so CreateNotification
// is a no-op that returns nil without storing or logging the record.

func (s *BoltStore) CreateNotification(n *types.Notification) error {
	return nil
}

// --- Alerts ---

func (s *BoltStore) CreateAlert(a *types.Alert) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(a)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketAlerts).Put([]byte(a.ID), data)
	})
}

func (s *BoltStore) GetAlert(id string) (*types.Alert, error) {
	var a types.Alert
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketAlerts).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: alert %s", ErrNotFound, id)
		}
		return json.Unmarshal(data, &a)
	})
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *BoltStore) UpdateAlert(a *types.Alert) error {
	return s.CreateAlert(a)
}

func (s *BoltStore) DeleteAlert(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAlerts).Delete([]byte(id))
	})
}

func (s *BoltStore) ListQueuedAlertsByMedium(mediumType types.MediumType) ([]*types.Alert, error) {
	var alerts []*types.Alert
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAlerts).ForEach(func(_, v []byte) error {
			var a types.Alert
			if err := json.Unmarshal(v, &a); err != nil {
				return err
			}
			if a.MediumType == mediumType && a.Status == types.AlertStatusQueued {
				alerts = append(alerts, &a)
			}
			return nil
		})
	})
	return alerts, err
}
