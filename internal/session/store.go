package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"
)

// ErrConflict means the stored generation no longer matches the caller's.
var ErrConflict = errors.New("session generation conflict")

// Store persists session payloads with compare-and-set on Generation.
// Save with expectedGeneration 0 creates a session only when none exists
// and otherwise requires the stored generation to equal expectedGeneration.
// On success p.Generation is set to expectedGeneration+1.
type Store interface {
	Load(ctx context.Context, sessionID string) (*Payload, error)
	Save(ctx context.Context, sessionID string, p *Payload, expectedGeneration int64) error
	Delete(ctx context.Context, sessionID string) error
}

func sessionKey(sessionID string) string {
	hash := sha256.Sum256([]byte(strings.TrimSpace(sessionID)))
	return "llmchess:sessions:" + hex.EncodeToString(hash[:])
}

// MemoryStore keeps encoded payloads in a map, for single-process setups and tests.
type MemoryStore struct {
	mu    sync.Mutex
	ttl   time.Duration
	now   func() time.Time
	items map[string]memoryItem
}

type memoryItem struct {
	raw       []byte
	gen       int64
	expiresAt time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{ttl: ttl, now: time.Now, items: make(map[string]memoryItem)}
}

func (m *MemoryStore) Load(_ context.Context, sessionID string) (*Payload, error) {
	m.mu.Lock()
	item, ok := m.live(sessionKey(sessionID))
	m.mu.Unlock()
	if !ok {
		return nil, nil
	}
	var p Payload
	if err := json.Unmarshal(item.raw, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (m *MemoryStore) Save(_ context.Context, sessionID string, p *Payload, expectedGeneration int64) error {
	key := sessionKey(sessionID)
	m.mu.Lock()
	defer m.mu.Unlock()

	current := int64(0)
	if item, ok := m.live(key); ok {
		current = item.gen
	}
	if current != expectedGeneration {
		return ErrConflict
	}

	next := *p
	next.Generation = expectedGeneration + 1
	raw, err := json.Marshal(&next)
	if err != nil {
		return err
	}
	item := memoryItem{raw: raw, gen: next.Generation}
	if m.ttl > 0 {
		item.expiresAt = m.now().Add(m.ttl)
	}
	m.items[key] = item
	p.Generation = next.Generation
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, sessionID string) error {
	m.mu.Lock()
	delete(m.items, sessionKey(sessionID))
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) live(key string) (memoryItem, bool) {
	item, ok := m.items[key]
	if !ok {
		return memoryItem{}, false
	}
	if !item.expiresAt.IsZero() && m.now().After(item.expiresAt) {
		delete(m.items, key)
		return memoryItem{}, false
	}
	return item, true
}
