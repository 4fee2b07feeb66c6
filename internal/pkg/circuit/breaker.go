package circuit

import (
	"errors"
	"sync"
	"time"

	"ethpulse/internal/logger"
)

// ErrOpen is returned by Allow while the breaker is rejecting calls.
var ErrOpen = errors.New("circuit open")

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Breaker 连续失败 threshold 次后熔断，cooldown 之后放行一次探测调用。
type Breaker struct {
	name      string
	threshold int
	cooldown  time.Duration
	nowFn     func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool
	onChange func(name string, from, to State)
}

func New(name string, threshold int, cooldown time.Duration) *Breaker {
	return &Breaker{
		name:      name,
		threshold: threshold,
		cooldown:  cooldown,
		nowFn:     time.Now,
	}
}

func (b *Breaker) WithClock(now func() time.Time) *Breaker {
	if now != nil {
		b.nowFn = now
	}
	return b
}

// OnStateChange is called synchronously, with the breaker unlocked.
func (b *Breaker) OnStateChange(fn func(name string, from, to State)) {
	b.mu.Lock()
	b.onChange = fn
	b.mu.Unlock()
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow reports whether a call may proceed. In half-open state only one probe is
// in flight at a time.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	switch b.state {
	case StateOpen:
		if b.nowFn().Sub(b.openedAt) < b.cooldown {
			b.mu.Unlock()
			return ErrOpen
		}
		from := b.setState(StateHalfOpen)
		b.probing = true
		b.mu.Unlock()
		b.notify(from, StateHalfOpen)
		return nil
	case StateHalfOpen:
		defer b.mu.Unlock()
		if b.probing {
			return ErrOpen
		}
		b.probing = true
		return nil
	default:
		b.mu.Unlock()
		return nil
	}
}

func (b *Breaker) Success() {
	b.mu.Lock()
	b.failures = 0
	b.probing = false
	if b.state == StateClosed {
		b.mu.Unlock()
		return
	}
	from := b.setState(StateClosed)
	b.mu.Unlock()
	b.notify(from, StateClosed)
}

func (b *Breaker) Failure() {
	b.mu.Lock()
	b.failures++
	b.probing = false
	trip := b.state == StateHalfOpen || (b.state == StateClosed && b.failures >= b.threshold)
	if !trip {
		b.mu.Unlock()
		return
	}
	b.openedAt = b.nowFn()
	from := b.setState(StateOpen)
	failures := b.failures
	b.mu.Unlock()
	if from != StateOpen {
		logger.Warnf("[circuit] %s opened after %d failures, cooldown %s", b.name, failures, b.cooldown)
	}
	b.notify(from, StateOpen)
}

func (b *Breaker) setState(to State) State {
	from := b.state
	b.state = to
	return from
}

func (b *Breaker) notify(from, to State) {
	if from == to {
		return
	}
	b.mu.Lock()
	fn := b.onChange
	b.mu.Unlock()
	if fn != nil {
		fn(b.name, from, to)
	}
}
