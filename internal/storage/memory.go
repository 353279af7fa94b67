package storage

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrAlertNotFound is returned when an alert id is unknown.
var ErrAlertNotFound = errors.New("storage: alert not found")

// MemoryStore keeps alerts in creation order behind a single mutex. Nothing
// survives a restart.
type MemoryStore struct {
	mu     sync.RWMutex
	alerts []Alert
	now    func() time.Time
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

// Create stores a new active alert.
func (s *MemoryStore) Create(fields AlertFields) Alert {
	alert := Alert{
		ID:            uuid.NewString(),
		Symbol:        fields.Symbol,
		Type:          fields.Type,
		Condition:     fields.Condition,
		Value:         fields.Value,
		NotifyDiscord: fields.NotifyDiscord,
		Status:        StatusActive,
		CreatedAt:     s.now().UTC(),
	}

	s.mu.Lock()
	s.alerts = append(s.alerts, alert)
	s.mu.Unlock()
	return alert
}

// List returns a copy of all alerts.
func (s *MemoryStore) List() []Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Alert, len(s.alerts))
	copy(out, s.alerts)
	return out
}

// Active returns a copy of the alerts still being evaluated.
func (s *MemoryStore) Active() []Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Alert, 0, len(s.alerts))
	for _, a := range s.alerts {
		if a.Status == StatusActive {
			out = append(out, a)
		}
	}
	return out
}

// Get returns the alert with id.
func (s *MemoryStore) Get(id string) (Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexOf(id); i >= 0 {
		return s.alerts[i], nil
	}
	return Alert{}, ErrAlertNotFound
}

// Update replaces the editable fields, keeping id, creation time and status.
func (s *MemoryStore) Update(id string, fields AlertFields) (Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return Alert{}, ErrAlertNotFound
	}
	a := &s.alerts[i]
	a.Symbol = fields.Symbol
	a.Type = fields.Type
	a.Condition = fields.Condition
	a.Value = fields.Value
	a.NotifyDiscord = fields.NotifyDiscord
	return *a, nil
}

// Delete removes the alert with id.
func (s *MemoryStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return ErrAlertNotFound
	}
	s.alerts = append(s.alerts[:i], s.alerts[i+1:]...)
	return nil
}

// MarkTriggered flips an active alert to triggered. It reports false when the
// alert is gone or was already triggered.
func (s *MemoryStore) MarkTriggered(id string) (Alert, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 || s.alerts[i].Status != StatusActive {
		return Alert{}, false
	}
	s.alerts[i].Status = StatusTriggered
	return s.alerts[i], true
}

func (s *MemoryStore) indexOf(id string) int {
	for i := range s.alerts {
		if s.alerts[i].ID == id {
			return i
		}
	}
	return -1
}
