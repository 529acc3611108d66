package session

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"

	"github.com/danmuck/blocksdk/internal/channel"
	logs "github.com/danmuck/blocksdk/internal/logging"
	"github.com/danmuck/blocksdk/internal/observability"
	"github.com/danmuck/blocksdk/internal/protocol"
)

var (
	ErrNilChannel  = errors.New("session: channel required")
	ErrOwnOrigin   = errors.New("session: channel has no own origin")
	ErrClosed      = errors.New("session: closed")
	ErrNegativeTTL = errors.New("session: negative retry budget")
)

// Stats counts session outcomes. Failures never reach callers, so this is where they show up.
type Stats struct {
	Sent      uint64
	Retried   uint64
	Abandoned uint64
	Resolved  uint64
	Unmatched uint64
	Discarded uint64
	Rejected  uint64
	Expired   uint64
	Failed    uint64
	Notified  uint64
}

type counters struct {
	sent      atomic.Uint64
	retried   atomic.Uint64
	abandoned atomic.Uint64
	resolved  atomic.Uint64
	unmatched atomic.Uint64
	discarded atomic.Uint64
	rejected  atomic.Uint64
	expired   atomic.Uint64
	failed    atomic.Uint64
	notified  atomic.Uint64
}

// Session is the block's end of the channel to its editor.
type Session struct {
	ch      channel.Channel
	cfg     Config
	clock   clock.Clock
	own     string
	pending *PendingCalls
	stats   counters

	mu          sync.Mutex
	hs          handshake
	closed      bool
	retryTimers map[*clock.Timer]struct{}
	unlisten    func()
}

// New attaches a session to ch and immediately posts the handshake to any destination.
func New(ch channel.Channel, cfg Config) (*Session, error) {
	if ch == nil {
		return nil, ErrNilChannel
	}
	own := strings.TrimSpace(ch.Origin())
	if own == "" {
		return nil, ErrOwnOrigin
	}
	cfg = cfg.WithDefaults()
	s := &Session{
		ch:          ch,
		cfg:         cfg,
		clock:       cfg.Clock,
		own:         own,
		pending:     NewPendingCalls(),
		hs:          handshake{validator: cfg.validator()},
		retryTimers: make(map[*clock.Timer]struct{}),
	}
	s.unlisten = ch.Listen(s.Receive)

	if err := ch.Post(protocol.HandShakeEnvelope(own), protocol.TargetAny); err != nil {
		logs.Warnf("session.New handshake post failed own=%q err=%v", own, err)
	} else {
		logs.Debugf("session.New handshake posted own=%q", own)
	}
	return s, nil
}

func (s *Session) Origin() string {
	return s.own
}

func (s *Session) State() HandshakeState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hs.state
}

func (s *Session) Established() bool {
	return s.State() == Established
}

// ParentOrigin returns the trusted parent origin once the handshake has been accepted.
func (s *Session) ParentOrigin() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hs.parent, s.hs.state == Established
}

// Pending lists calls still awaiting a response.
func (s *Session) Pending() []PendingCall {
	return s.pending.List()
}

func (s *Session) Stats() Stats {
	return Stats{
		Sent:      s.stats.sent.Load(),
		Retried:   s.stats.retried.Load(),
		Abandoned: s.stats.abandoned.Load(),
		Resolved:  s.stats.resolved.Load(),
		Unmatched: s.stats.unmatched.Load(),
		Discarded: s.stats.discarded.Load(),
		Rejected:  s.stats.rejected.Load(),
		Expired:   s.stats.expired.Load(),
		Failed:    s.stats.failed.Load(),
		Notified:  s.stats.notified.Load(),
	}
}

// Send issues a call with the default retry budget. cb runs at most once, when the matching
// response arrives; it never runs if the call is abandoned or never answered.
func (s *Session) Send(method string, payload any, cb Callback) error {
	return s.SendWithBudget(method, payload, cb, s.cfg.Retry.MaxRetries)
}

// SendWithBudget issues a call that may wait for the handshake at most budget more times.
// A zero budget drops the call if the handshake is not yet established.
func (s *Session) SendWithBudget(method string, payload any, cb Callback, budget int) error {
	if budget < 0 {
		return ErrNegativeTTL
	}
	env, err := protocol.NewEnvelope(method, payload)
	if err != nil {
		return err
	}
	if env.IsHandShake() {
		return fmt.Errorf("session: %q is reserved", protocol.MethodHandShake)
	}
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}
	s.attempt(env, cb, budget)
	return nil
}

func (s *Session) attempt(env protocol.Envelope, cb Callback, budget int) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.hs.state != Established {
		remaining, ok := s.cfg.Retry.next(budget)
		if !ok {
			s.mu.Unlock()
			s.stats.abandoned.Add(1)
			observability.RecordCallAbandoned()
			logs.Debugf("session.attempt abandoned method=%q", env.Method)
			return
		}
		var timer *clock.Timer
		timer = s.clock.AfterFunc(s.cfg.Retry.Delay, func() {
			s.mu.Lock()
			delete(s.retryTimers, timer)
			s.mu.Unlock()
			s.attempt(env, cb, remaining)
		})
		s.retryTimers[timer] = struct{}{}
		s.mu.Unlock()
		s.stats.retried.Add(1)
		observability.RecordCallRetry()
		return
	}
	parent := s.hs.parent
	s.mu.Unlock()

	id := s.pending.Register(env.Method, cb, s.clock.Now())
	env.ID = id
	if s.cfg.CallTimeout > 0 {
		s.pending.SetExpiry(id, s.clock.AfterFunc(s.cfg.CallTimeout, func() {
			s.expire(id)
		}))
	}
	if err := s.ch.Post(env, parent); err != nil {
		s.pending.Take(id)
		s.stats.failed.Add(1)
		observability.RecordCallFailed()
		logs.Warnf("session.attempt post failed method=%q id=%d target=%q err=%v", env.Method, id, parent, err)
		return
	}
	s.stats.sent.Add(1)
	observability.RecordCallSent(env.Method)
}

func (s *Session) expire(id uint64) {
	if _, ok := s.pending.Take(id); !ok {
		return
	}
	s.stats.expired.Add(1)
	observability.RecordCallExpired()
	logs.Debugf("session.expire id=%d timeout=%s", id, s.cfg.CallTimeout)
}

// Receive is the channel listener. Handshakes are evaluated before the trusted-origin gate
// because they are what establishes it.
func (s *Session) Receive(msg protocol.Message) {
	switch in := protocol.Classify(msg).(type) {
	case protocol.HandShake:
		s.receiveHandShake(in)
	case protocol.Response:
		s.receiveResponse(in)
	}
}

func (s *Session) receiveHandShake(in protocol.HandShake) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	result := s.hs.receive(in.Advertised)
	s.mu.Unlock()

	switch result {
	case handshakeAccepted:
		observability.RecordHandshake("block", observability.HandshakeAccepted)
		logs.Infof("session.Receive handshake accepted parent=%q sender=%q", in.Advertised, in.Sender)
	case handshakeRejected:
		s.stats.rejected.Add(1)
		observability.RecordHandshake("block", observability.HandshakeRejected)
		logs.Debugf("session.Receive handshake rejected advertised=%q sender=%q", in.Advertised, in.Sender)
	case handshakeIgnored:
		observability.RecordHandshake("block", observability.HandshakeIgnored)
	}
}

func (s *Session) receiveResponse(in protocol.Response) {
	s.mu.Lock()
	trusted := !s.closed && s.hs.trusts(in.Sender)
	s.mu.Unlock()
	if !trusted {
		s.stats.discarded.Add(1)
		observability.RecordInboundDiscarded(observability.DiscardUntrusted)
		logs.Debugf("session.Receive drop sender=%q method=%q id=%d", in.Sender, in.Method, in.ID)
		return
	}
	if in.ID == 0 && in.Method != "" && s.cfg.OnNotify != nil {
		s.notify(in)
		return
	}
	if s.pending.Resolve(in.ID, in.Payload) {
		s.stats.resolved.Add(1)
		observability.RecordResponse()
		return
	}
	s.stats.unmatched.Add(1)
	observability.RecordInboundDiscarded(observability.DiscardUnmatched)
}

// notify hands an id-less message from the parent to the hook. The pending table is never
// consulted, so a notification cannot consume a call's callback.
func (s *Session) notify(in protocol.Response) {
	s.stats.notified.Add(1)
	observability.RecordNotification(in.Method)
	defer func() {
		if r := recover(); r != nil {
			logs.Errf("session.notify hook panic method=%q err=%v", in.Method, r)
		}
	}()
	s.cfg.OnNotify(in.Method, in.Payload)
}

// Close stops retries and expiry timers and detaches from the channel. Pending callbacks are
// dropped without being invoked. The channel itself is left open.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	timers := s.retryTimers
	s.retryTimers = make(map[*clock.Timer]struct{})
	unlisten := s.unlisten
	s.mu.Unlock()

	for timer := range timers {
		timer.Stop()
	}
	s.pending.Clear()
	if unlisten != nil {
		unlisten()
	}
	return nil
}
