package link

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/penlink/internal/device"
	"github.com/srg/penlink/internal/groutine"
	"github.com/srg/penlink/internal/hal"
	"github.com/srg/penlink/internal/stylus"
)

// LinkState is the lifecycle stage of the managed peripheral.
type LinkState int32

const (
	Disconnected LinkState = iota
	Connecting
	Discovering
	EnablingNotifications
	Ready
)

func (s LinkState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Discovering:
		return "discovering"
	case EnablingNotifications:
		return "enabling-notifications"
	case Ready:
		return "ready"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Settings is the configuration source consulted on adapter power changes.
type Settings interface {
	Enabled() bool
}

// ErrNoServiceUUID is returned by NewSupervisor when no service UUID is configured.
var ErrNoServiceUUID = errors.New("service UUID is required")

const defaultInboxSize = 64

// Options configures a Supervisor.
type Options struct {
	ServiceUUID string
	EnableQueue []stylus.CharacteristicID

	// ReconnectDelay postpones automatic reconnects; zero reconnects immediately.
	ReconnectDelay time.Duration
	// ConnectTimeout bounds dial and discovery; zero means no limit.
	ConnectTimeout time.Duration

	InboxSize int

	// OnNotification receives every notification of the current link, in arrival order.
	OnNotification func(stylus.RawNotification)
	// OnStateChange observes state transitions. It runs on the supervisor goroutine.
	OnStateChange func(from, to LinkState)
}

// Supervisor owns the link to one pen. All state lives on the goroutine running Run;
// public methods only post messages to its inbox. Completions of asynchronous work carry
// the generation that started them and are dropped once that generation is superseded.
type Supervisor struct {
	radio    device.Radio
	hal      hal.Capability
	settings Settings
	opts     Options
	logger   *logrus.Logger

	inbox   chan func()
	done    chan struct{}
	started atomic.Bool
	state   atomic.Int32

	// Owned by the Run goroutine.
	ctx        context.Context
	identity   string
	wanted     bool
	generation uint64
	dialCancel context.CancelFunc
	link       device.Link
	linkCancel context.CancelFunc
	retry      *time.Timer
	service    device.Service
	enabler    *Enabler
}

// NewSupervisor creates a supervisor. Run must be called to start processing.
func NewSupervisor(radio device.Radio, capability hal.Capability, settings Settings, opts Options, logger *logrus.Logger) (*Supervisor, error) {
	if device.NormalizeUUID(opts.ServiceUUID) == "" {
		return nil, ErrNoServiceUUID
	}
	if opts.InboxSize <= 0 {
		opts.InboxSize = defaultInboxSize
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Supervisor{
		radio:    radio,
		hal:      capability,
		settings: settings,
		opts:     opts,
		logger:   logger,
		inbox:    make(chan func(), opts.InboxSize),
		done:     make(chan struct{}),
	}, nil
}

// Run processes the inbox until ctx is cancelled. On exit the active link is closed
// without touching the charging state.
func (s *Supervisor) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return errors.New("supervisor already running")
	}
	s.ctx = ctx
	defer close(s.done)
	defer func() {
		s.stopRetry()
		s.cancelDial()
		s.releaseLink()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-s.inbox:
			fn()
		}
	}
}

// State returns the current link state. Safe from any goroutine.
func (s *Supervisor) State() LinkState {
	return LinkState(s.state.Load())
}

// Connect requests a link to the provisioned pen and keeps it up until Disconnect.
func (s *Supervisor) Connect() {
	s.post(s.connect)
}

// Disconnect tears the link down and powers the pen's radio off. Safe in any state.
func (s *Supervisor) Disconnect() {
	s.post(s.disconnect)
}

// Shutdown disconnects and waits until the teardown has run, or ctx is done.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	processed := make(chan struct{})
	if !s.postCtx(ctx, func() {
		s.disconnect()
		close(processed)
	}) {
		return ctx.Err()
	}
	select {
	case <-processed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return nil
	}
}

// HandleAdapterPower reacts to the local adapter being switched on or off.
func (s *Supervisor) HandleAdapterPower(on bool) {
	s.post(func() {
		s.logger.WithField("powered", on).Info("Bluetooth adapter power changed")
		if !on {
			s.disconnect()
			return
		}
		if s.settings != nil && s.settings.Enabled() {
			s.disconnect()
			s.connect()
		}
	})
}

// HandlePairingRequest reports whether a pairing request from address belongs to the managed
// pen. A true result means the request is confirmed and must not be offered to anyone else.
func (s *Supervisor) HandlePairingRequest(ctx context.Context, address string) bool {
	result := make(chan bool, 1)
	posted := s.postCtx(ctx, func() {
		result <- s.wanted && s.identity != "" && strings.EqualFold(s.identity, address)
	})
	if !posted {
		return false
	}

	select {
	case ok := <-result:
		if ok {
			s.logger.WithField("address", address).Info("Pairing request auto-confirmed")
		}
		return ok
	case <-ctx.Done():
		return false
	case <-s.done:
		return false
	}
}

func (s *Supervisor) post(fn func()) bool {
	select {
	case s.inbox <- fn:
		return true
	case <-s.done:
		return false
	}
}

func (s *Supervisor) postCtx(ctx context.Context, fn func()) bool {
	select {
	case s.inbox <- fn:
		return true
	case <-ctx.Done():
		return false
	case <-s.done:
		return false
	}
}

func (s *Supervisor) setState(to LinkState) {
	from := LinkState(s.state.Swap(int32(to)))
	if from == to {
		return
	}
	s.logger.WithFields(logrus.Fields{
		"from": from.String(),
		"to":   to.String(),
	}).Debug("Link state changed")
	if s.opts.OnStateChange != nil {
		s.opts.OnStateChange(from, to)
	}
}

func (s *Supervisor) connect() {
	s.wanted = true

	addr, err := s.hal.Address()
	if err != nil {
		s.logger.WithError(err).Error("Failed to read pen address")
		s.abortConnect()
		return
	}
	if addr == "" || addr == hal.UnprovisionedAddress {
		s.logger.WithField("address", addr).Warn("Pen address is not provisioned")
		s.abortConnect()
		return
	}
	if s.identity != "" && !strings.EqualFold(s.identity, addr) {
		s.logger.WithFields(logrus.Fields{"old": s.identity, "new": addr}).Info("Pen address changed")
		s.cancelDial()
		s.releaseLink()
	}
	s.identity = addr
	log := s.logger.WithField("address", addr)
	log.Info("Connecting to pen")

	if powered, err := s.radio.AdapterPowered(); err != nil {
		log.WithError(err).Warn("Failed to query adapter power")
	} else if !powered {
		if err := s.radio.SetAdapterPowered(true); err != nil {
			log.WithError(err).Warn("Failed to power on adapter")
		}
	}

	charging, err := s.hal.IsCharging()
	if err != nil {
		log.WithError(err).Error("Failed to query pen charging state")
		s.abortConnect()
		return
	}
	if !charging {
		if err := s.hal.SetCharging(true); err != nil {
			log.WithError(err).Error("Failed to enable pen charging")
			s.abortConnect()
			return
		}
	}

	if s.dialCancel != nil {
		log.Debug("Dial already in flight")
		return
	}
	if s.link != nil {
		connected, err := s.radio.IsConnected(addr)
		if err == nil && connected {
			log.Debug("Pen already connected")
			return
		}
		s.releaseLink()
	}
	s.dial(addr)
}

// abortConnect settles the state after a failed connect with no link to fall back on.
func (s *Supervisor) abortConnect() {
	if s.link == nil && s.dialCancel == nil {
		s.setState(Disconnected)
	}
}

func (s *Supervisor) dial(addr string) {
	s.generation++
	gen := s.generation
	s.setState(Connecting)

	ctx, cancel := s.withTimeout(s.ctx)
	s.dialCancel = cancel

	groutine.GoSafe(ctx, "penlink-dial", s.logger, func(ctx context.Context) {
		l, err := s.radio.Dial(ctx, addr)
		if !s.post(func() { s.onDialed(gen, l, err) }) && l != nil {
			_ = l.Close()
		}
	}, func(v any) {
		s.post(func() { s.onDialed(gen, nil, fmt.Errorf("dial panicked: %v", v)) })
	})
}

func (s *Supervisor) onDialed(gen uint64, l device.Link, err error) {
	if gen != s.generation {
		// Closing a superseded link releases only that attempt. Backends leave the device and
		// its notifications to whichever newer link owns them.
		if l != nil {
			_ = l.Close()
		}
		return
	}
	s.cancelDial()

	log := s.logger.WithField("address", s.identity)
	if err != nil {
		err = device.NormalizeError(err)
		log.WithError(err).Warn("Failed to connect to pen")
		if errors.Is(err, device.ErrBluetoothOff) {
			// Adapter power events restart the link.
			s.setState(Disconnected)
			return
		}
		s.reconnect()
		return
	}

	log.Info("Pen connected")
	s.link = l
	linkCtx, cancel := context.WithCancel(s.ctx)
	s.linkCancel = cancel

	groutine.Go(linkCtx, "penlink-link-watch", func(ctx context.Context) {
		select {
		case <-l.Disconnected():
			s.post(func() { s.onLinkLost(gen) })
		case <-ctx.Done():
		}
	})

	s.setState(Discovering)
	groutine.GoSafe(linkCtx, "penlink-discover", s.logger, func(ctx context.Context) {
		ctx, cancel := s.withTimeout(ctx)
		defer cancel()
		svc, err := l.DiscoverService(ctx, s.opts.ServiceUUID)
		s.post(func() { s.onDiscovered(gen, svc, err) })
	}, nil)
}

func (s *Supervisor) onDiscovered(gen uint64, svc device.Service, err error) {
	if gen != s.generation {
		return
	}
	log := s.logger.WithFields(logrus.Fields{"address": s.identity, "service": s.opts.ServiceUUID})
	if err != nil {
		log.WithError(err).Error("Unable to find pen GATT service")
		return
	}

	log.Info("Found pen GATT service")
	s.service = svc
	s.setState(EnablingNotifications)
	s.enabler = NewEnabler(RequesterFunc(func(id stylus.CharacteristicID) {
		s.requestEnable(gen, id)
	}), s.opts.EnableQueue...)

	log.Info("Enabling characteristic notifications")
	if s.enabler.Start() {
		s.setState(Ready)
	}
}

func (s *Supervisor) requestEnable(gen uint64, id stylus.CharacteristicID) {
	log := s.logger.WithField("characteristic", id.String())

	char, err := s.service.Characteristic(id.UUID())
	if err != nil {
		log.WithError(err).Error("Pen characteristic missing, enablement halted")
		return
	}

	handler := func(data []byte) {
		n := stylus.RawNotification{
			Characteristic: id,
			Payload:        append([]byte(nil), data...),
			ReceivedAt:     time.Now(),
		}
		s.post(func() { s.onNotification(gen, n) })
	}

	groutine.GoSafe(s.ctx, "penlink-enable-"+id.String(), s.logger, func(context.Context) {
		err := char.Subscribe(handler)
		s.post(func() { s.onEnabled(gen, id, err) })
	}, nil)
}

func (s *Supervisor) onEnabled(gen uint64, id stylus.CharacteristicID, err error) {
	if gen != s.generation || s.enabler == nil {
		return
	}
	log := s.logger.WithField("characteristic", id.String())
	if err != nil {
		log.WithError(err).Error("Failed to enable notifications, enablement halted")
		return
	}
	log.Debug("Notifications enabled")

	if s.enabler.Confirm(id) {
		s.logger.WithField("address", s.identity).Info("Pen ready")
		s.setState(Ready)
	}
}

func (s *Supervisor) onNotification(gen uint64, n stylus.RawNotification) {
	if gen != s.generation {
		return
	}
	if s.opts.OnNotification != nil {
		s.opts.OnNotification(n)
	}
}

func (s *Supervisor) onLinkLost(gen uint64) {
	if gen != s.generation {
		return
	}
	s.logger.WithField("address", s.identity).Warn("Pen disconnected")
	s.releaseLink()
	s.reconnect()
}

// reconnect restarts the link after a loss or a failed dial. There is no backoff
// beyond the configured delay and no attempt cap.
func (s *Supervisor) reconnect() {
	if !s.wanted {
		s.setState(Disconnected)
		return
	}
	s.setState(Connecting)
	if s.opts.ReconnectDelay <= 0 {
		s.connect()
		return
	}

	gen := s.generation
	s.logger.WithField("delay", s.opts.ReconnectDelay).Debug("Reconnect scheduled")
	s.stopRetry()
	s.retry = time.AfterFunc(s.opts.ReconnectDelay, func() {
		s.post(func() {
			if gen == s.generation && s.wanted {
				s.connect()
			}
		})
	})
}

func (s *Supervisor) stopRetry() {
	if s.retry != nil {
		s.retry.Stop()
		s.retry = nil
	}
}

func (s *Supervisor) disconnect() {
	s.wanted = false
	s.stopRetry()
	s.cancelDial()
	s.releaseLink()

	if s.identity != "" {
		if err := s.radio.DisconnectProfiles(s.identity); err != nil {
			s.logger.WithError(err).WithField("address", s.identity).Debug("Failed to clear profile associations")
		}
	}
	if err := s.hal.SetCharging(false); err != nil {
		s.logger.WithError(err).Warn("Failed to disable pen charging")
	}
	s.setState(Disconnected)
}

func (s *Supervisor) cancelDial() {
	if s.dialCancel != nil {
		s.dialCancel()
		s.dialCancel = nil
	}
}

// releaseLink closes the active link and invalidates every completion it may still deliver.
func (s *Supervisor) releaseLink() {
	s.generation++
	if s.linkCancel != nil {
		s.linkCancel()
		s.linkCancel = nil
	}
	if s.enabler != nil {
		s.enabler.Reset()
		s.enabler = nil
	}
	s.service = nil
	if s.link != nil {
		if err := s.link.Close(); err != nil {
			s.logger.WithError(err).Debug("Failed to close link")
		}
		s.link = nil
	}
}

func (s *Supervisor) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opts.ConnectTimeout > 0 {
		return context.WithTimeout(ctx, s.opts.ConnectTimeout)
	}
	return context.WithCancel(ctx)
}
