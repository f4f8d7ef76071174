package link

import (
	"testing"

	"github.com/srg/penlink/internal/stylus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingRequester struct {
	requested []stylus.CharacteristicID
}

func (r *recordingRequester) RequestEnable(id stylus.CharacteristicID) {
	r.requested = append(r.requested, id)
}

func TestEnabler_SequentialFlow(t *testing.T) {
	// GOAL: Verify notifications are enabled strictly one after another
	//
	// TEST SCENARIO: start -> battery requested; confirm battery -> button requested; confirm button -> done

	req := &recordingRequester{}
	e := NewEnabler(req)

	done := e.Start()
	require.False(t, done)
	assert.Equal(t, []stylus.CharacteristicID{stylus.Battery}, req.requested, "only the head MUST be requested")
	assert.Equal(t, []stylus.CharacteristicID{stylus.Battery, stylus.Button}, e.Pending())

	done = e.Confirm(stylus.Battery)
	require.False(t, done)
	assert.Equal(t, []stylus.CharacteristicID{stylus.Button}, e.Pending())
	assert.Equal(t, []stylus.CharacteristicID{stylus.Battery, stylus.Button}, req.requested)

	done = e.Confirm(stylus.Button)
	assert.True(t, done, "drained queue MUST report completion")
	assert.Empty(t, e.Pending())
	assert.Len(t, req.requested, 2, "no request MUST follow the last confirmation")
}

func TestEnabler_IgnoresNonHeadConfirmation(t *testing.T) {
	tests := []struct {
		name    string
		confirm stylus.CharacteristicID
	}{
		{name: "out of order", confirm: stylus.Button},
		{name: "never queued", confirm: stylus.SelfTest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := &recordingRequester{}
			e := NewEnabler(req)
			e.Start()
			before := e.Pending()

			assert.False(t, e.Confirm(tt.confirm))
			assert.Equal(t, before, e.Pending(), "queue MUST be unchanged by a stale confirmation")
			assert.Len(t, req.requested, 1, "no request MUST be issued for a stale confirmation")
		})
	}
}

func TestEnabler_DuplicateConfirmation(t *testing.T) {
	req := &recordingRequester{}
	e := NewEnabler(req)
	e.Start()

	e.Confirm(stylus.Battery)
	e.Confirm(stylus.Battery)

	assert.Equal(t, []stylus.CharacteristicID{stylus.Button}, e.Pending())
	assert.Equal(t, []stylus.CharacteristicID{stylus.Battery, stylus.Button}, req.requested)
}

func TestEnabler_ConfirmAfterDrain(t *testing.T) {
	e := NewEnabler(&recordingRequester{}, stylus.Button)
	e.Start()
	require.True(t, e.Confirm(stylus.Button))

	assert.False(t, e.Confirm(stylus.Button), "confirmation on an empty queue MUST be a no-op")
}

func TestEnabler_RestartRefillsQueue(t *testing.T) {
	req := &recordingRequester{}
	e := NewEnabler(req)
	e.Start()
	e.Confirm(stylus.Battery)

	e.Start()
	assert.Equal(t, []stylus.CharacteristicID{stylus.Battery, stylus.Button}, e.Pending())
	head, ok := e.Head()
	require.True(t, ok)
	assert.Equal(t, stylus.Battery, head)
}

func TestEnabler_CustomQueue(t *testing.T) {
	req := &recordingRequester{}
	e := NewEnabler(req, stylus.Button, stylus.ChargeStatus, stylus.Battery)

	e.Start()
	e.Confirm(stylus.Button)
	e.Confirm(stylus.ChargeStatus)
	done := e.Confirm(stylus.Battery)

	assert.True(t, done)
	assert.Equal(t, []stylus.CharacteristicID{stylus.Button, stylus.ChargeStatus, stylus.Battery}, req.requested)
}

func TestEnabler_Reset(t *testing.T) {
	e := NewEnabler(&recordingRequester{})
	e.Start()
	e.Reset()

	_, ok := e.Head()
	assert.False(t, ok)
	assert.False(t, e.Confirm(stylus.Battery))
}

func TestEnabler_DefaultQueueNotAliased(t *testing.T) {
	e := NewEnabler(RequesterFunc(func(stylus.CharacteristicID) {}))
	e.Start()
	e.Confirm(stylus.Battery)
	e.Start()

	assert.Equal(t, []stylus.CharacteristicID{stylus.Battery, stylus.Button}, DefaultEnableQueue,
		"enabler MUST NOT mutate the shared default queue")
}
