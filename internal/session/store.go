package session

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/knowledge-assistant/backend/pkg/logger"
)

// DefaultSessionID names the session that always exists, even with zero
// persisted state.
const DefaultSessionID = "default"

const DefaultRetention = 30 * 24 * time.Hour

// Manager is the durable session store. Saves are serialized per session
// id; the manager also tracks the active session pointer, which falls back
// to the default session when the active one is deleted.
type Manager struct {
	kv KV

	mu     sync.Mutex
	locks  map[string]*sync.Mutex
	active string
}

func NewManager(kv KV) *Manager {
	return &Manager{
		kv:     kv,
		locks:  make(map[string]*sync.Mutex),
		active: DefaultSessionID,
	}
}

// Load returns the stored session, or absent. A malformed record is treated
// as absent, not an error: a corrupt file must never take the API down.
func (m *Manager) Load(id string) (*Session, bool, error) {
	data, ok, err := m.kv.Get(id)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		if id == DefaultSessionID {
			return newDefaultSession(), true, nil
		}
		return nil, false, nil
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		logger.Warn("Malformed session record, treating as absent",
			zap.String("session_id", id),
			zap.Error(err),
		)
		if id == DefaultSessionID {
			return newDefaultSession(), true, nil
		}
		return nil, false, nil
	}

	return &sess, true, nil
}

func (m *Manager) Save(sess *Session) error {
	if sess.ID == "" {
		return fmt.Errorf("session id is required")
	}

	lock := m.lockFor(sess.ID)
	lock.Lock()
	defer lock.Unlock()

	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session %q: %w", sess.ID, err)
	}

	if err := m.kv.Put(sess.ID, data); err != nil {
		return fmt.Errorf("failed to save session %q: %w", sess.ID, err)
	}

	return nil
}

// Create makes a new persisted session and points the active session at it.
func (m *Manager) Create(title string) (*Session, error) {
	sess := &Session{
		ID:        uuid.New().String(),
		Title:     title,
		CreatedAt: time.Now().UTC(),
		Messages:  []Message{},
	}

	if err := m.Save(sess); err != nil {
		return nil, err
	}

	m.SetActive(sess.ID)
	logger.Info("Session created", zap.String("session_id", sess.ID), zap.String("title", title))

	return sess, nil
}

// Delete removes a session record. The default session cannot be deleted;
// deleting the active session falls the pointer back to the default.
func (m *Manager) Delete(id string) error {
	if id == DefaultSessionID {
		return fmt.Errorf("the default session cannot be deleted")
	}

	lock := m.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	if err := m.kv.Delete(id); err != nil {
		return fmt.Errorf("failed to delete session %q: %w", id, err)
	}

	m.mu.Lock()
	if m.active == id {
		m.active = DefaultSessionID
	}
	delete(m.locks, id)
	m.mu.Unlock()

	logger.Info("Session deleted", zap.String("session_id", id))
	return nil
}

// ListAll returns every stored session keyed by id. The default session is
// always present, synthesized if it has never been saved. Malformed records
// are skipped.
func (m *Manager) ListAll() (map[string]*Session, error) {
	keys, err := m.kv.ListKeys()
	if err != nil {
		return nil, err
	}

	sessions := make(map[string]*Session, len(keys)+1)
	for _, key := range keys {
		sess, ok, err := m.Load(key)
		if err != nil {
			return nil, err
		}
		if ok {
			sessions[key] = sess
		}
	}

	if _, ok := sessions[DefaultSessionID]; !ok {
		sessions[DefaultSessionID] = newDefaultSession()
	}

	return sessions, nil
}

// Cleanup removes sessions whose createdAt is older than the retention
// window. The default session is never removed. Returns the number of
// sessions deleted.
func (m *Manager) Cleanup(retention time.Duration) (int, error) {
	if retention <= 0 {
		retention = DefaultRetention
	}
	cutoff := time.Now().Add(-retention)

	keys, err := m.kv.ListKeys()
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, key := range keys {
		if key == DefaultSessionID {
			continue
		}

		sess, ok, err := m.Load(key)
		if err != nil || !ok {
			continue
		}

		if sess.CreatedAt.Before(cutoff) {
			if err := m.Delete(key); err != nil {
				logger.Warn("Failed to clean up old session",
					zap.String("session_id", key),
					zap.Error(err),
				)
				continue
			}
			removed++
		}
	}

	if removed > 0 {
		logger.Info("Old sessions cleaned up", zap.Int("removed", removed))
	}

	return removed, nil
}

// AppendMessages loads, appends and saves under the session's write lock
// equivalent (Save serializes per id).
func (m *Manager) AppendMessages(id string, msgs ...Message) error {
	sess, ok, err := m.Load(id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("session %q not found", id)
	}

	sess.Messages = append(sess.Messages, msgs...)
	return m.Save(sess)
}

func (m *Manager) Active() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

func (m *Manager) SetActive(id string) {
	m.mu.Lock()
	m.active = id
	m.mu.Unlock()
}

func (m *Manager) lockFor(id string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()

	lock, ok := m.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[id] = lock
	}
	return lock
}

func newDefaultSession() *Session {
	return &Session{
		ID:        DefaultSessionID,
		Title:     "Default Session",
		CreatedAt: time.Now().UTC(),
		Messages:  []Message{},
	}
}
