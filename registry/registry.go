// Package registry tracks the subscriptions of one connection.
//
// A subscription is pending from the moment the subscribe command is issued
// until the server acknowledges it, and active from then on. Pending
// subscriptions form a FIFO: its order is the order in which commands must be
// flushed to the wire, preserving the order in which the caller issued them.
//
// A Registry performs no I/O and is not safe for concurrent use; the
// connection funnels all access through its serial loop.
package registry

import (
	"bytes"

	"github.com/ridge/livequery/wire"
	"golang.org/x/exp/slices"
)

// Handler receives the callbacks of a single subscription.
//
// The registry and the connection hold the handler only to invoke it; its
// lifetime belongs to the caller.
type Handler interface {
	// OnEvent delivers the raw bytes of one event frame addressed to this
	// subscription. Decoding the typed payload is the handler's business.
	OnEvent(data []byte)

	// OnSubscribed reports the server's acknowledgement. isNew is false when
	// the acknowledgement renews a subscription that was already active
	// before (a replay after reconnect).
	OnSubscribed(isNew bool)

	// OnUnsubscribed reports that the subscription is gone
	OnUnsubscribed()
}

// Record is the registry's bookkeeping for one subscription
type Record struct {
	RequestID   wire.RequestID
	Fingerprint []byte // canonical serialized query, compared byte-wise
	Message     []byte // latest serialized outbound command, replayed on reconnect
	Handler     Handler
}

// Registry is the authoritative map of active and pending subscriptions of
// one connection. The zero value is not usable; call New.
type Registry struct {
	nextID  wire.RequestID
	pending []*Record
	active  map[wire.RequestID]*Record
	order   []wire.RequestID // active records in subscription order

	everActive map[wire.RequestID]bool
}

// New creates an empty Registry
func New() *Registry {
	return &Registry{
		nextID:     1,
		active:     map[wire.RequestID]*Record{},
		everActive: map[wire.RequestID]bool{},
	}
}

// EnqueuePending allocates a request id and appends a new pending record for
// it. The caller fills in Message once the outbound command is serialized.
func (r *Registry) EnqueuePending(fingerprint []byte, handler Handler) *Record {
	rec := &Record{
		RequestID:   r.nextID,
		Fingerprint: fingerprint,
		Handler:     handler,
	}
	r.nextID++
	r.pending = append(r.pending, rec)
	return rec
}

// Promote moves the pending record with the given id to active.
//
// wasActive reports whether the same request id had been active before (the
// acknowledgement renews a replayed subscription rather than creating a new
// one). ok is false if no pending record matches.
func (r *Registry) Promote(id wire.RequestID) (rec *Record, wasActive, ok bool) {
	i := slices.IndexFunc(r.pending, func(rec *Record) bool { return rec.RequestID == id })
	if i < 0 {
		return nil, false, false
	}
	rec = r.pending[i]
	r.pending = slices.Delete(r.pending, i, i+1)

	wasActive = r.everActive[id]
	r.active[id] = rec
	r.order = append(r.order, id)
	r.everActive[id] = true
	return rec, wasActive, true
}

// Active returns the active record with the given id, or nil
func (r *Registry) Active(id wire.RequestID) *Record {
	return r.active[id]
}

// RemoveActive removes and returns the active record with the given id
func (r *Registry) RemoveActive(id wire.RequestID) (*Record, bool) {
	rec, ok := r.active[id]
	if !ok {
		return nil, false
	}
	delete(r.active, id)
	r.order = slices.DeleteFunc(r.order, func(o wire.RequestID) bool { return o == id })
	return rec, true
}

// RemovePending removes and returns the pending record with the given id
func (r *Registry) RemovePending(id wire.RequestID) (*Record, bool) {
	i := slices.IndexFunc(r.pending, func(rec *Record) bool { return rec.RequestID == id })
	if i < 0 {
		return nil, false
	}
	rec := r.pending[i]
	r.pending = slices.Delete(r.pending, i, i+1)
	return rec, true
}

// IsSubscribed reports whether an active record matches the fingerprint
func (r *Registry) IsSubscribed(fingerprint []byte) bool {
	for _, id := range r.order {
		if bytes.Equal(r.active[id].Fingerprint, fingerprint) {
			return true
		}
	}
	return false
}

// IsPending reports whether a pending record matches the fingerprint
func (r *Registry) IsPending(fingerprint []byte) bool {
	for _, rec := range r.pending {
		if bytes.Equal(rec.Fingerprint, fingerprint) {
			return true
		}
	}
	return false
}

// ActiveRecords returns the active records in subscription order
func (r *Registry) ActiveRecords() []*Record {
	recs := make([]*Record, 0, len(r.order))
	for _, id := range r.order {
		recs = append(recs, r.active[id])
	}
	return recs
}

// PendingRecords returns the pending records in FIFO order
func (r *Registry) PendingRecords() []*Record {
	return slices.Clone(r.pending)
}

// Empty reports whether the registry holds no subscriptions at all
func (r *Registry) Empty() bool {
	return len(r.pending) == 0 && len(r.active) == 0
}

// DrainForResubscribe prepares the registry for a reconnect: every active
// record moves back to the front of the pending FIFO, oldest first, ahead of
// any records that were already pending. The result is the new pending
// sequence, in the order the commands must be resent.
func (r *Registry) DrainForResubscribe() []*Record {
	recs := r.ActiveRecords()
	r.pending = append(recs, r.pending...)
	r.active = map[wire.RequestID]*Record{}
	r.order = nil
	return slices.Clone(r.pending)
}
