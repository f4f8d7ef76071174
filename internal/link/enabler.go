package link

import (
	"github.com/srg/penlink/internal/stylus"
)

// DefaultEnableQueue is the order in which notifications are switched on after discovery.
var DefaultEnableQueue = []stylus.CharacteristicID{stylus.Battery, stylus.Button}

// Requester issues a single enable-notification request. The result must come back
// through Enabler.Confirm once the descriptor write completes.
type Requester interface {
	RequestEnable(id stylus.CharacteristicID)
}

// RequesterFunc adapts a function to Requester.
type RequesterFunc func(id stylus.CharacteristicID)

func (f RequesterFunc) RequestEnable(id stylus.CharacteristicID) { f(id) }

// Enabler switches notifications on one characteristic at a time.
// The peripheral rejects concurrent GATT operations, so the next request is only
// issued once the previous descriptor write has been confirmed.
// Not safe for concurrent use; the supervisor owns it.
type Enabler struct {
	template  []stylus.CharacteristicID
	queue     []stylus.CharacteristicID
	requester Requester
}

// NewEnabler creates an enabler for the given queue; an empty queue selects DefaultEnableQueue.
func NewEnabler(requester Requester, queue ...stylus.CharacteristicID) *Enabler {
	if len(queue) == 0 {
		queue = DefaultEnableQueue
	}
	return &Enabler{
		template:  append([]stylus.CharacteristicID(nil), queue...),
		requester: requester,
	}
}

// Start refills the queue and requests the head. It reports true when there is nothing to enable.
func (e *Enabler) Start() bool {
	e.queue = append(e.queue[:0], e.template...)
	return e.requestHead()
}

// Confirm records a completed descriptor write. Confirmations for anything other than
// the head are ignored. It reports true when the queue has just drained.
func (e *Enabler) Confirm(id stylus.CharacteristicID) bool {
	if len(e.queue) == 0 || e.queue[0] != id {
		return false
	}
	e.queue = e.queue[1:]
	return e.requestHead()
}

// Head returns the characteristic whose confirmation is awaited.
func (e *Enabler) Head() (stylus.CharacteristicID, bool) {
	if len(e.queue) == 0 {
		return 0, false
	}
	return e.queue[0], true
}

// Pending returns a copy of the characteristics still to be enabled, head first.
func (e *Enabler) Pending() []stylus.CharacteristicID {
	return append([]stylus.CharacteristicID(nil), e.queue...)
}

// Reset drops the queue without issuing requests.
func (e *Enabler) Reset() {
	e.queue = e.queue[:0]
}

func (e *Enabler) requestHead() bool {
	if len(e.queue) == 0 {
		return true
	}
	e.requester.RequestEnable(e.queue[0])
	return false
}
