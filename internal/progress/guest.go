package progress

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/biolingo/sync-engine/internal/infrastructure/driver"
)

// GuestProgress session-scoped completion set for anonymous use. Lives in the
// kv store under a TTL, is never written to the durable cache and never
// queued for remote sync. Expiry is the only way guest progress goes away
type GuestProgress struct {
	kv  driver.KeyValueDB
	ttl time.Duration
}

// NewGuestProgress .
func NewGuestProgress(kv driver.KeyValueDB, ttl time.Duration) *GuestProgress {
	return &GuestProgress{
		kv:  kv,
		ttl: ttl,
	}
}

func guestKey(sessionID string) string {
	return fmt.Sprintf("guest:progress:%s", sessionID)
}

// Read completed lesson IDs for a guest session, empty for a fresh session
func (gp *GuestProgress) Read(sessionID string) (map[string]time.Time, error) {
	raw, err := gp.kv.Get(guestKey(sessionID))
	if err != nil {
		return nil, err
	}
	completed := make(map[string]time.Time)
	if raw == "" {
		return completed, nil
	}
	if err := json.Unmarshal([]byte(raw), &completed); err != nil {
		return nil, err
	}
	return completed, nil
}

// Add record a completion for a guest session, refreshing the session TTL
func (gp *GuestProgress) Add(sessionID string, lessonID string, at time.Time) error {
	completed, err := gp.Read(sessionID)
	if err != nil {
		return err
	}
	if _, ok := completed[lessonID]; ok {
		return nil
	}
	completed[lessonID] = at

	raw, err := json.Marshal(completed)
	if err != nil {
		return err
	}
	return gp.kv.SetEX(guestKey(sessionID), string(raw), gp.ttl)
}
