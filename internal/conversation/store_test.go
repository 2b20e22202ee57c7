package conversation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"whatsapp-autoreply/internal/kv"
)

// ttlRecorder remembers the TTL of every write and can be switched to fail.
type ttlRecorder struct {
	*kv.Memory
	ttls map[string]time.Duration
	fail bool
}

func (r *ttlRecorder) Get(ctx context.Context, key string) ([]byte, error) {
	if r.fail {
		return nil, errors.New("store down")
	}
	return r.Memory.Get(ctx, key)
}

func (r *ttlRecorder) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if r.fail {
		return errors.New("store down")
	}
	r.ttls[key] = ttl
	return r.Memory.Set(ctx, key, value, ttl)
}

func newTestStore() (*Store, *ttlRecorder, *time.Time) {
	rec := &ttlRecorder{Memory: kv.NewMemory(), ttls: map[string]time.Duration{}}
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	s := NewStore(rec, 0, 0)
	s.now = func() time.Time { return now }
	return s, rec, &now
}

func TestSetGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore()

	require.Nil(t, s.Get(ctx, "dev1", "a@s.whatsapp.net"))

	ok := s.Set(ctx, "dev1", "a@s.whatsapp.net", StateActiveBot, map[string]interface{}{"lastMatchedRule": "menu"}, "ignored")
	require.True(t, ok)

	conv := s.Get(ctx, "dev1", "a@s.whatsapp.net")
	require.NotNil(t, conv)
	require.Equal(t, StateActiveBot, conv.State)
	require.Equal(t, "menu", conv.Context["lastMatchedRule"])
	require.Nil(t, conv.HandoffReason)
	require.Nil(t, conv.HandoffAt)
}

func TestHandoffFieldsAndTTL(t *testing.T) {
	ctx := context.Background()
	s, rec, now := newTestStore()
	key := Key("dev1", "a@s.whatsapp.net")
	created := *now

	require.True(t, s.Set(ctx, "dev1", "a@s.whatsapp.net", StateIdle, nil, ""))
	require.Equal(t, DefaultTTL, rec.ttls[key])

	*now = now.Add(time.Minute)
	require.True(t, s.Set(ctx, "dev1", "a@s.whatsapp.net", StateHandoff, nil, "keyword"))
	require.Equal(t, DefaultHandoffTTL, rec.ttls[key])
	handoffAt := *now

	*now = now.Add(time.Minute)
	require.True(t, s.Set(ctx, "dev1", "a@s.whatsapp.net", StateHandoff, nil, "keyword"))

	conv := s.Get(ctx, "dev1", "a@s.whatsapp.net")
	require.NotNil(t, conv)
	require.Equal(t, "keyword", *conv.HandoffReason)
	require.True(t, conv.HandoffAt.Equal(handoffAt))
	require.True(t, conv.CreatedAt.Equal(created))
	require.True(t, conv.LastActivity.Equal(*now))

	require.True(t, s.Set(ctx, "dev1", "a@s.whatsapp.net", StateIdle, nil, ""))
	conv = s.Get(ctx, "dev1", "a@s.whatsapp.net")
	require.Nil(t, conv.HandoffReason)
	require.Nil(t, conv.HandoffAt)
	require.Equal(t, DefaultTTL, rec.ttls[key])
}

func TestRestoreKeepsHandoffFields(t *testing.T) {
	ctx := context.Background()
	s, _, now := newTestStore()

	require.True(t, s.Set(ctx, "dev1", "a", StateHandoff, map[string]interface{}{"k": "v"}, "keyword"))
	prev := s.Get(ctx, "dev1", "a")

	*now = now.Add(time.Hour)
	require.True(t, s.Set(ctx, "dev1", "a", StateIdle, nil, ""))
	require.True(t, s.Restore(ctx, "dev1", "a", prev))

	conv := s.Get(ctx, "dev1", "a")
	require.Equal(t, StateHandoff, conv.State)
	require.Equal(t, "keyword", *conv.HandoffReason)
	require.True(t, conv.HandoffAt.Equal(*prev.HandoffAt))
	require.Equal(t, "v", conv.Context["k"])

	require.True(t, s.Restore(ctx, "dev1", "a", nil))
	require.Nil(t, s.Get(ctx, "dev1", "a"))
}

func TestHandoffWithoutReason(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore()

	require.True(t, s.Set(ctx, "dev1", "a", StateHandoff, nil, ""))
	conv := s.Get(ctx, "dev1", "a")
	require.NotNil(t, conv.HandoffReason)
	require.NotEmpty(t, *conv.HandoffReason)
}

func TestUpdateContext(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore()

	require.False(t, s.UpdateContext(ctx, "dev1", "a", map[string]interface{}{"x": 1}))

	require.True(t, s.Set(ctx, "dev1", "a", StateHandoff, map[string]interface{}{"x": "old", "y": "keep"}, "keyword"))
	require.True(t, s.UpdateContext(ctx, "dev1", "a", map[string]interface{}{"x": "new"}))

	conv := s.Get(ctx, "dev1", "a")
	require.Equal(t, StateHandoff, conv.State)
	require.Equal(t, "keyword", *conv.HandoffReason)
	require.Equal(t, "new", conv.Context["x"])
	require.Equal(t, "keep", conv.Context["y"])
}

func TestClearListAndStats(t *testing.T) {
	ctx := context.Background()
	s, _, now := newTestStore()

	require.True(t, s.Set(ctx, "dev1", "a", StateHandoff, nil, "keyword"))
	*now = now.Add(time.Second)
	require.True(t, s.Set(ctx, "dev1", "b", StateActiveBot, nil, ""))
	*now = now.Add(time.Second)
	require.True(t, s.Set(ctx, "dev1", "c", StateHandoff, nil, "admin"))
	require.True(t, s.Set(ctx, "dev2", "a", StateHandoff, nil, "keyword"))

	handoffs := s.ListHandoffs(ctx, "dev1")
	require.Len(t, handoffs, 2)
	require.Equal(t, "a", handoffs[0].SenderJID)
	require.Equal(t, "c", handoffs[1].SenderJID)

	require.Equal(t, Stats{ActiveBot: 1, Handoff: 2, Total: 3}, s.Stats(ctx, "dev1"))

	require.True(t, s.Clear(ctx, "dev1", "a"))
	require.Nil(t, s.Get(ctx, "dev1", "a"))
	require.Len(t, s.ListHandoffs(ctx, "dev1"), 1)
}

func TestStorageErrorsDegrade(t *testing.T) {
	ctx := context.Background()
	s, rec, _ := newTestStore()
	require.True(t, s.Set(ctx, "dev1", "a", StateIdle, nil, ""))

	rec.fail = true
	require.Nil(t, s.Get(ctx, "dev1", "a"))
	require.False(t, s.Set(ctx, "dev1", "a", StateHandoff, nil, "keyword"))
	require.False(t, s.UpdateContext(ctx, "dev1", "a", map[string]interface{}{"k": "v"}))
}

func TestSetWithFailoverStore(t *testing.T) {
	ctx := context.Background()
	s := NewStore(kv.NewFailover(kv.NewMemory(), kv.NewMemory(), time.Second), time.Hour, 2*time.Hour)

	require.True(t, s.Set(ctx, "dev1", "a", StateActiveBot, map[string]interface{}{"k": "v"}, ""))
	conv := s.Get(ctx, "dev1", "a")
	require.NotNil(t, conv)
	require.Equal(t, "v", conv.Context["k"])
}
