// Package actions turns pen notifications into key events for the input sink.
package actions

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/penlink/internal/gesture"
	"github.com/srg/penlink/internal/groutine"
	"github.com/srg/penlink/internal/input"
	"github.com/srg/penlink/internal/ringchan"
	"github.com/srg/penlink/internal/stylus"
)

const DefaultQueueSize = 64

// ModeSource supplies the stored mode preference ("0", "1", "2" or a mode name).
type ModeSource interface {
	Mode() string
}

// Pipeline decodes notifications, classifies them and queues the resulting key events.
// A single worker drains the queue into the sink, so a slow sink never stalls the link;
// when the queue is full the oldest events are dropped.
//
// HandleNotification and Process must be called from one goroutine at a time.
type Pipeline struct {
	classifier *gesture.Classifier
	modes      ModeSource
	sink       input.Sink
	queue      *ringchan.RingChannel[input.KeyEvent]
	logger     *logrus.Logger
	now        func() time.Time

	wg sync.WaitGroup
}

// New creates a pipeline. queueSize <= 0 selects DefaultQueueSize.
func New(modes ModeSource, sink input.Sink, queueSize int, logger *logrus.Logger) *Pipeline {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Pipeline{
		classifier: gesture.NewClassifier(),
		modes:      modes,
		sink:       sink,
		queue:      ringchan.New[input.KeyEvent](queueSize),
		logger:     logger,
		now:        time.Now,
	}
}

// Start launches the worker feeding the sink. It stops when ctx is done or Close is called.
func (p *Pipeline) Start(ctx context.Context) {
	p.wg.Add(1)
	groutine.GoSafe(ctx, "penlink-input", p.logger, func(ctx context.Context) {
		defer p.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-p.queue.C():
				if !ok {
					return
				}
				p.inject(ev)
			}
		}
	}, nil)
}

func (p *Pipeline) inject(ev input.KeyEvent) {
	if err := p.sink.Inject(ev); err != nil {
		p.queue.RecordError()
		p.logger.WithError(err).WithFields(logrus.Fields{
			"key":   ev.Code.String(),
			"phase": ev.Phase.String(),
		}).Warn("Failed to inject key event")
	}
}

// HandleNotification processes one notification and queues its key events.
func (p *Pipeline) HandleNotification(n stylus.RawNotification) {
	for _, ev := range p.Process(n) {
		if p.queue.Send(ev) {
			p.logger.Warn("Key event queue full, dropped oldest event")
		}
	}
}

// Process decodes and classifies one notification and returns the key events it yields,
// without queueing them.
func (p *Pipeline) Process(n stylus.RawNotification) []input.KeyEvent {
	if n.Characteristic != stylus.Button && n.Characteristic != stylus.Battery {
		p.logger.WithFields(logrus.Fields{
			"characteristic": n.Characteristic.String(),
			"uuid":           n.Characteristic.UUID(),
		}).Error("Unknown characteristic")
		return nil
	}

	ev, ok := stylus.DecodeNotification(n)
	if !ok {
		p.logger.WithFields(logrus.Fields{
			"characteristic": n.Characteristic.String(),
			"payload":        n.Payload,
		}).Debug("Ignoring undecodable payload")
		return nil
	}

	if b, ok := ev.(stylus.BatteryLevel); ok {
		p.logger.WithField("percent", b.Percent).Info("Battery level")
		return nil
	}

	at := n.ReceivedAt
	if at.IsZero() {
		at = p.now()
	}
	action, ok := p.classifier.Handle(ev, at)
	if !ok {
		return nil
	}

	mode := p.mode()
	code := gesture.KeyFor(mode, action)
	p.logger.WithFields(logrus.Fields{
		"action": action.String(),
		"mode":   mode.String(),
		"key":    code.String(),
	}).Debug("Pen action")

	var pair [2]input.KeyEvent
	if action.Kind == gesture.Click {
		pair = input.Press(code, action.DownAt, action.UpAt)
	} else {
		pair = input.Press(code, at, at)
	}
	return pair[:]
}

func (p *Pipeline) mode() gesture.Mode {
	if p.modes == nil {
		return gesture.Navigation
	}
	raw := p.modes.Mode()
	mode, err := gesture.ParseMode(raw)
	if err != nil {
		p.logger.WithError(err).WithField("mode", raw).Warn("Invalid mode preference, using navigation")
	}
	return mode
}

// Reset forgets any press in progress, e.g. after the link dropped mid-press.
func (p *Pipeline) Reset() {
	p.classifier.Reset()
}

// Stats returns the queue counters.
func (p *Pipeline) Stats() ringchan.Metrics {
	return p.queue.GetMetrics()
}

// Close stops accepting events, waits for the worker to drain the queue and closes the sink.
// No notification may be handled after Close.
func (p *Pipeline) Close() error {
	p.queue.Close()
	p.wg.Wait()
	return p.sink.Close()
}
