package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"go.uber.org/zap"

	"whatsapp-autoreply/internal/kv"
)

type State string

const (
	StateIdle      State = "IDLE"
	StateActiveBot State = "ACTIVE_BOT"
	StateHandoff   State = "HANDOFF"
)

const (
	DefaultTTL        = 24 * time.Hour
	DefaultHandoffTTL = 48 * time.Hour

	keyPrefix = "conv:"
	// used when a handoff is written without a reason
	unspecifiedReason = "unspecified"
)

// Conversation is the persisted state of one (device, sender) thread.
// HandoffReason and HandoffAt are set exactly when State is HANDOFF.
type Conversation struct {
	DeviceID      string                 `json:"deviceId"`
	SenderJID     string                 `json:"senderJid"`
	State         State                  `json:"state"`
	Context       map[string]interface{} `json:"context"`
	HandoffReason *string                `json:"handoffReason"`
	HandoffAt     *time.Time             `json:"handoffAt"`
	LastActivity  time.Time              `json:"lastActivity"`
	CreatedAt     time.Time              `json:"createdAt"`
}

type Stats struct {
	Idle      int `json:"idle"`
	ActiveBot int `json:"active_bot"`
	Handoff   int `json:"handoff"`
	Total     int `json:"total"`
}

// Store keeps conversation state in a kv.Store. Every method is best-effort:
// storage errors are logged and reported as absent, false or empty.
type Store struct {
	kv         kv.Store
	ttl        time.Duration
	handoffTTL time.Duration
	now        func() time.Time
}

func NewStore(store kv.Store, ttl, handoffTTL time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if handoffTTL <= 0 {
		handoffTTL = DefaultHandoffTTL
	}
	return &Store{kv: store, ttl: ttl, handoffTTL: handoffTTL, now: time.Now}
}

// Key returns the storage key for a conversation.
func Key(deviceID, senderJID string) string {
	return keyPrefix + deviceID + ":" + senderJID
}

func devicePrefix(deviceID string) string {
	return keyPrefix + deviceID + ":"
}

func (s *Store) ttlFor(state State) time.Duration {
	if state == StateHandoff {
		return s.handoffTTL
	}
	return s.ttl
}

// Get returns the live conversation or nil when absent, expired or unreadable.
func (s *Store) Get(ctx context.Context, deviceID, senderJID string) *Conversation {
	conv, err := s.load(ctx, deviceID, senderJID)
	if err != nil {
		zap.L().Warn("conversation get failed",
			zap.String("device_id", deviceID), zap.String("sender", senderJID), zap.Error(err))
		return nil
	}
	return conv
}

func (s *Store) load(ctx context.Context, deviceID, senderJID string) (*Conversation, error) {
	raw, err := s.kv.Get(ctx, Key(deviceID, senderJID))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var conv Conversation
	if err := json.Unmarshal(raw, &conv); err != nil {
		return nil, err
	}
	if conv.Context == nil {
		conv.Context = map[string]interface{}{}
	}
	return &conv, nil
}

func (s *Store) save(ctx context.Context, conv *Conversation) error {
	raw, err := json.Marshal(conv)
	if err != nil {
		return err
	}
	return s.kv.Set(ctx, Key(conv.DeviceID, conv.SenderJID), raw, s.ttlFor(conv.State))
}

// Set replaces the whole record. handoffReason is only kept for HANDOFF.
// The creation time survives rewrites, and the handoff time survives while
// the thread stays in HANDOFF.
func (s *Store) Set(ctx context.Context, deviceID, senderJID string, state State, convCtx map[string]interface{}, handoffReason string) bool {
	now := s.now().UTC()

	prev, err := s.load(ctx, deviceID, senderJID)
	if err != nil {
		zap.L().Debug("conversation previous read failed",
			zap.String("device_id", deviceID), zap.String("sender", senderJID), zap.Error(err))
		prev = nil
	}

	if convCtx == nil {
		convCtx = map[string]interface{}{}
	}
	conv := &Conversation{
		DeviceID:     deviceID,
		SenderJID:    senderJID,
		State:        state,
		Context:      convCtx,
		LastActivity: now,
		CreatedAt:    now,
	}
	if prev != nil && !prev.CreatedAt.IsZero() {
		conv.CreatedAt = prev.CreatedAt
	}
	if state == StateHandoff {
		if handoffReason == "" {
			handoffReason = unspecifiedReason
		}
		conv.HandoffReason = &handoffReason
		at := now
		if prev != nil && prev.State == StateHandoff && prev.HandoffAt != nil {
			at = *prev.HandoffAt
		}
		conv.HandoffAt = &at
	}

	if err := s.save(ctx, conv); err != nil {
		zap.L().Warn("conversation set failed",
			zap.String("device_id", deviceID), zap.String("sender", senderJID),
			zap.String("state", string(state)), zap.Error(err))
		return false
	}
	return true
}

// UpdateContext merges partial into the stored context, keeping the state and
// handoff fields. It returns false when there is no record to update.
func (s *Store) UpdateContext(ctx context.Context, deviceID, senderJID string, partial map[string]interface{}) bool {
	conv, err := s.load(ctx, deviceID, senderJID)
	if err != nil {
		zap.L().Warn("conversation update read failed",
			zap.String("device_id", deviceID), zap.String("sender", senderJID), zap.Error(err))
		return false
	}
	if conv == nil {
		return false
	}

	for k, v := range partial {
		conv.Context[k] = v
	}
	conv.LastActivity = s.now().UTC()

	if err := s.save(ctx, conv); err != nil {
		zap.L().Warn("conversation update failed",
			zap.String("device_id", deviceID), zap.String("sender", senderJID), zap.Error(err))
		return false
	}
	return true
}

// Restore writes back a record read earlier, unchanged. A nil prev clears the
// thread.
func (s *Store) Restore(ctx context.Context, deviceID, senderJID string, prev *Conversation) bool {
	if prev == nil {
		return s.Clear(ctx, deviceID, senderJID)
	}
	if err := s.save(ctx, prev); err != nil {
		zap.L().Warn("conversation restore failed",
			zap.String("device_id", deviceID), zap.String("sender", senderJID), zap.Error(err))
		return false
	}
	return true
}

func (s *Store) Clear(ctx context.Context, deviceID, senderJID string) bool {
	if err := s.kv.Delete(ctx, Key(deviceID, senderJID)); err != nil {
		zap.L().Warn("conversation clear failed",
			zap.String("device_id", deviceID), zap.String("sender", senderJID), zap.Error(err))
		return false
	}
	return true
}

// List returns every live conversation of a device, oldest activity first.
func (s *Store) List(ctx context.Context, deviceID string) []*Conversation {
	entries, err := s.kv.Scan(ctx, devicePrefix(deviceID))
	if err != nil {
		zap.L().Warn("conversation scan failed", zap.String("device_id", deviceID), zap.Error(err))
		return nil
	}

	out := make([]*Conversation, 0, len(entries))
	for _, e := range entries {
		var conv Conversation
		if err := json.Unmarshal(e.Value, &conv); err != nil {
			zap.L().Debug("skipping unreadable conversation", zap.String("key", e.Key), zap.Error(err))
			continue
		}
		if conv.DeviceID != deviceID {
			continue
		}
		out = append(out, &conv)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].LastActivity.Before(out[j].LastActivity) })
	return out
}

func (s *Store) ListHandoffs(ctx context.Context, deviceID string) []*Conversation {
	var out []*Conversation
	for _, conv := range s.List(ctx, deviceID) {
		if conv.State == StateHandoff {
			out = append(out, conv)
		}
	}
	return out
}

func (s *Store) Stats(ctx context.Context, deviceID string) Stats {
	var st Stats
	for _, conv := range s.List(ctx, deviceID) {
		switch conv.State {
		case StateIdle:
			st.Idle++
		case StateActiveBot:
			st.ActiveBot++
		case StateHandoff:
			st.Handoff++
		}
		st.Total++
	}
	return st
}
