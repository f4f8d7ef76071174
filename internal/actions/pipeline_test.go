package actions

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/srg/penlink/internal/gesture"
	"github.com/srg/penlink/internal/input"
	"github.com/srg/penlink/internal/stylus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedMode string

func (m fixedMode) Mode() string { return string(m) }

type collectingSink struct {
	mu     sync.Mutex
	events []input.KeyEvent
	err    error
	closed bool
}

func (c *collectingSink) Inject(ev input.KeyEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return c.err
}

func (c *collectingSink) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *collectingSink) snapshot() []input.KeyEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]input.KeyEvent(nil), c.events...)
}

func at(ms int) time.Time {
	return time.Unix(0, 0).Add(time.Duration(ms) * time.Millisecond)
}

func button(payload []byte, ms int) stylus.RawNotification {
	return stylus.RawNotification{Characteristic: stylus.Button, Payload: payload, ReceivedAt: at(ms)}
}

func move(dx, dy int16, ms int) stylus.RawNotification {
	return button([]byte{stylus.TypeMove, byte(dx), byte(uint16(dx) >> 8), byte(dy), byte(uint16(dy) >> 8)}, ms)
}

func newTestPipeline(mode string) (*Pipeline, *test.Hook) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return New(fixedMode(mode), &collectingSink{}, 8, logger), hook
}

func TestProcess_Click(t *testing.T) {
	p, _ := newTestPipeline("0")

	assert.Empty(t, p.Process(button([]byte{stylus.TypeButtonDown}, 100)))
	events := p.Process(button([]byte{stylus.TypeButtonUp}, 140))

	require.Len(t, events, 2)
	assert.Equal(t, input.Press(gesture.KeyEnter, at(100), at(140)), [2]input.KeyEvent{events[0], events[1]})
}

func TestProcess_SwipeSuppressesClick(t *testing.T) {
	p, _ := newTestPipeline("2")

	assert.Empty(t, p.Process(button([]byte{stylus.TypeButtonDown}, 100)))
	swipe := p.Process(move(0, -800, 120))
	release := p.Process(button([]byte{stylus.TypeButtonUp}, 140))

	require.Len(t, swipe, 2)
	assert.Equal(t, gesture.KeyVolumeUp, swipe[0].Code, "media mode -Y MUST map to volume up")
	assert.Equal(t, input.Down, swipe[0].Phase)
	assert.Equal(t, input.Up, swipe[1].Phase)
	assert.Equal(t, at(120), swipe[1].EventTime)
	assert.Empty(t, release, "release after a swipe MUST NOT click")
}

func TestProcess_ModeReadPerAction(t *testing.T) {
	logger, _ := test.NewNullLogger()
	modes := &switchableMode{value: "0"}
	p := New(modes, &collectingSink{}, 8, logger)

	first := p.Process(move(900, 0, 10))
	modes.set("media")
	second := p.Process(move(900, 0, 20))

	require.Len(t, first, 2)
	require.Len(t, second, 2)
	assert.Equal(t, gesture.KeyRight, first[0].Code)
	assert.Equal(t, gesture.KeyNextSong, second[0].Code)
}

type switchableMode struct {
	mu    sync.Mutex
	value string
}

func (m *switchableMode) Mode() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.value
}

func (m *switchableMode) set(v string) {
	m.mu.Lock()
	m.value = v
	m.mu.Unlock()
}

func TestProcess_InvalidModeFallsBack(t *testing.T) {
	p, hook := newTestPipeline("7")

	events := p.Process(move(-900, 0, 10))

	require.Len(t, events, 2)
	assert.Equal(t, gesture.KeyLeft, events[0].Code)
	var messages []string
	for _, e := range hook.AllEntries() {
		messages = append(messages, e.Message)
	}
	assert.Contains(t, messages, "Invalid mode preference, using navigation")
}

func TestProcess_CameraSwipeYieldsUnknownKey(t *testing.T) {
	p, _ := newTestPipeline("1")

	events := p.Process(move(0, 900, 10))

	require.Len(t, events, 2)
	assert.Equal(t, gesture.KeyUnknown, events[0].Code, "unmapped swipe MUST still deliver the sentinel key")
}

func TestProcess_BatteryLogged(t *testing.T) {
	p, hook := newTestPipeline("0")

	events := p.Process(stylus.RawNotification{Characteristic: stylus.Battery, Payload: []byte{87}})

	assert.Empty(t, events)
	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "Battery level", entry.Message)
	assert.Equal(t, logrus.InfoLevel, entry.Level)
	assert.Equal(t, uint8(87), entry.Data["percent"])
}

func TestProcess_UnknownCharacteristic(t *testing.T) {
	p, hook := newTestPipeline("0")

	events := p.Process(stylus.RawNotification{Characteristic: stylus.RawSensor, Payload: []byte{1, 2}})

	assert.Empty(t, events)
	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "Unknown characteristic", entry.Message)
	assert.Equal(t, logrus.ErrorLevel, entry.Level)
}

func TestProcess_MalformedPayloads(t *testing.T) {
	p, _ := newTestPipeline("0")

	for _, payload := range [][]byte{nil, {}, {stylus.TypeMove}, {stylus.TypeMove, 1, 2, 3}, {0x42}} {
		assert.NotPanics(t, func() {
			assert.Empty(t, p.Process(button(payload, 0)))
		})
	}
}

func TestProcess_ZeroReceiveTimeUsesClock(t *testing.T) {
	p, _ := newTestPipeline("0")
	p.now = func() time.Time { return at(999) }

	events := p.Process(stylus.RawNotification{Characteristic: stylus.Button, Payload: []byte{stylus.TypeMove, 0x00, 0x04, 0, 0}})

	require.Len(t, events, 2)
	assert.Equal(t, at(999), events[0].EventTime)
}

func TestReset_ForgetsPress(t *testing.T) {
	p, _ := newTestPipeline("0")
	p.Process(button([]byte{stylus.TypeButtonDown}, 100))
	p.Process(move(900, 0, 110))
	p.Reset()

	events := p.Process(button([]byte{stylus.TypeButtonUp}, 200))
	require.Len(t, events, 2)
	assert.True(t, events[0].DownTime.IsZero(), "reset MUST clear the recorded down time")
}

func TestPipeline_WorkerDeliversInOrder(t *testing.T) {
	// GOAL: Verify queued key events reach the sink in order through the worker
	//
	// TEST SCENARIO: click then swipe -> four events injected in order, sink closed on Close

	logger, _ := test.NewNullLogger()
	sink := &collectingSink{}
	p := New(fixedMode("0"), sink, 8, logger)
	p.Start(context.Background())

	p.HandleNotification(button([]byte{stylus.TypeButtonDown}, 100))
	p.HandleNotification(button([]byte{stylus.TypeButtonUp}, 140))
	p.HandleNotification(move(0, -900, 200))
	require.NoError(t, p.Close())

	events := sink.snapshot()
	require.Len(t, events, 4)
	assert.Equal(t, []gesture.KeyCode{gesture.KeyEnter, gesture.KeyEnter, gesture.KeyUp, gesture.KeyUp},
		[]gesture.KeyCode{events[0].Code, events[1].Code, events[2].Code, events[3].Code})
	assert.True(t, sink.closed)
	assert.Equal(t, int64(4), p.Stats().Written)
}

func TestPipeline_SinkErrorsAreContained(t *testing.T) {
	logger, hook := test.NewNullLogger()
	sink := &collectingSink{err: errors.New("device gone")}
	p := New(fixedMode("0"), sink, 8, logger)
	p.Start(context.Background())

	p.HandleNotification(move(900, 0, 10))
	require.NoError(t, p.Close())

	assert.Len(t, sink.snapshot(), 2)
	assert.Equal(t, int64(2), p.Stats().Errors)
	assert.Equal(t, "Failed to inject key event", hook.LastEntry().Message)
}

func TestPipeline_FullQueueDropsOldest(t *testing.T) {
	logger, _ := test.NewNullLogger()
	sink := &collectingSink{}
	p := New(fixedMode("0"), sink, 2, logger)

	p.HandleNotification(move(900, 0, 10))
	p.HandleNotification(move(-900, 0, 20))
	p.Start(context.Background())
	require.NoError(t, p.Close())

	events := sink.snapshot()
	require.Len(t, events, 2)
	assert.Equal(t, gesture.KeyLeft, events[0].Code, "newest events MUST survive an overflow")
	assert.Equal(t, int64(2), p.Stats().Overwritten)
}
