package registry

import (
	"encoding/json"
	"testing"

	"github.com/ridge/livequery/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopHandler struct{}

func (nopHandler) OnEvent([]byte)    {}
func (nopHandler) OnSubscribed(bool) {}
func (nopHandler) OnUnsubscribed()   {}

func fingerprint(class string) []byte {
	return wire.Query{ClassName: class, Where: json.RawMessage(`{}`)}.Fingerprint()
}

func TestRequestIDAllocation(t *testing.T) {
	r := New()
	var h nopHandler

	ids := []wire.RequestID{}
	for i := 0; i < 3; i++ {
		ids = append(ids, r.EnqueuePending(fingerprint("A"), h).RequestID)
	}
	assert.Equal(t, []wire.RequestID{1, 2, 3}, ids)

	// ids are never reused, even after removal
	_, ok := r.RemovePending(3)
	require.True(t, ok)
	assert.Equal(t, wire.RequestID(4), r.EnqueuePending(fingerprint("A"), h).RequestID)
}

func TestPromote(t *testing.T) {
	r := New()
	var h nopHandler

	rec := r.EnqueuePending(fingerprint("A"), h)

	promoted, wasActive, ok := r.Promote(rec.RequestID)
	require.True(t, ok)
	assert.False(t, wasActive)
	assert.Same(t, rec, promoted)

	// never in both registries at once
	assert.True(t, r.IsSubscribed(fingerprint("A")))
	assert.False(t, r.IsPending(fingerprint("A")))

	_, _, ok = r.Promote(rec.RequestID)
	assert.False(t, ok)
}

func TestPromoteAfterDrainRenews(t *testing.T) {
	r := New()
	var h nopHandler

	rec := r.EnqueuePending(fingerprint("A"), h)
	_, wasActive, ok := r.Promote(rec.RequestID)
	require.True(t, ok)
	require.False(t, wasActive)

	r.DrainForResubscribe()
	assert.True(t, r.IsPending(fingerprint("A")))
	assert.False(t, r.IsSubscribed(fingerprint("A")))

	_, wasActive, ok = r.Promote(rec.RequestID)
	require.True(t, ok)
	assert.True(t, wasActive)
}

func TestDrainOrder(t *testing.T) {
	r := New()
	var h nopHandler

	// three acknowledged subscriptions, two still pending
	var recs []*Record
	for _, class := range []string{"A", "B", "C", "D", "E"} {
		recs = append(recs, r.EnqueuePending(fingerprint(class), h))
	}
	for _, rec := range recs[:3] {
		_, _, ok := r.Promote(rec.RequestID)
		require.True(t, ok)
	}

	drained := r.DrainForResubscribe()
	require.Len(t, drained, 5)
	// actives first in their original order, then the pending tail
	for i, rec := range recs {
		assert.Equal(t, rec.RequestID, drained[i].RequestID)
	}
	assert.True(t, r.Empty() == false)
	assert.Empty(t, r.ActiveRecords())
	assert.Len(t, r.PendingRecords(), 5)
}

func TestRemoveActive(t *testing.T) {
	r := New()
	var h nopHandler

	rec := r.EnqueuePending(fingerprint("A"), h)
	_, _, ok := r.Promote(rec.RequestID)
	require.True(t, ok)

	removed, ok := r.RemoveActive(rec.RequestID)
	require.True(t, ok)
	assert.Same(t, rec, removed)
	assert.True(t, r.Empty())

	_, ok = r.RemoveActive(rec.RequestID)
	assert.False(t, ok)
}

func TestActiveLookup(t *testing.T) {
	r := New()
	var h nopHandler

	rec := r.EnqueuePending(fingerprint("A"), h)
	assert.Nil(t, r.Active(rec.RequestID)) // pending, not active

	_, _, ok := r.Promote(rec.RequestID)
	require.True(t, ok)
	assert.Same(t, rec, r.Active(rec.RequestID))
}
