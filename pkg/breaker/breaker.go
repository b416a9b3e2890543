package breaker

import (
	"sync"
	"time"

	"github.com/pkg/errors"
)

type state uint8

const (
	closed state = iota
	open
	halfOpen
)

var ErrOpen = errors.New("circuit breaker is open")

type CircuitBreaker interface {
	Call(fn func() error) error
	Reset()
}

// breaker trips after the failure ratio over the last windowSize calls
// reaches failureRatio. While open, calls fail fast with ErrOpen until
// cooldown has passed; then recoveryStreak consecutive successes close it
// again.
type breaker struct {
	mu sync.Mutex

	st           state
	window       []bool
	pos          int
	failureRatio float64
	cooldown     time.Duration
	openedAt     time.Time

	recoveryStreak int
	streak         int
}

func New(windowSize int, cooldown time.Duration, failureRatio float64, recoveryStreak int) CircuitBreaker {
	return &breaker{
		st:             closed,
		window:         make([]bool, windowSize),
		failureRatio:   failureRatio,
		cooldown:       cooldown,
		recoveryStreak: recoveryStreak,
	}
}

func (b *breaker) Call(fn func() error) error {
	b.mu.Lock()
	if b.st == open {
		if time.Since(b.openedAt) <= b.cooldown {
			b.mu.Unlock()
			return ErrOpen
		}
		b.st = halfOpen
		b.streak = 0
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()

	b.window[b.pos] = err != nil
	b.pos = (b.pos + 1) % len(b.window)

	if b.st == halfOpen {
		if err != nil {
			b.st = open
			b.openedAt = time.Now()
			return err
		}
		b.streak++
		if b.streak >= b.recoveryStreak {
			b.reset()
		}
		return err
	}

	var fails int
	for _, failed := range b.window {
		if failed {
			fails++
		}
	}
	if float64(fails)/float64(len(b.window)) >= b.failureRatio {
		b.st = open
		b.openedAt = time.Now()
	}
	return err
}

func (b *breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reset()
}

func (b *breaker) reset() {
	for i := range b.window {
		b.window[i] = false
	}
	b.pos = 0
	b.streak = 0
	b.st = closed
}
