package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	logx "github.com/Lyx52/opencast/pkg/logx"
)

// ErrNoConsumer is returned when publish retries are exhausted while no
// consumer is attached.
var ErrNoConsumer = errors.New("no notification consumer attached")

// Config controls publish backpressure.
//
// Defaults (when fields are zero): retry_max 10, retry_base 200ms,
// retry_max_delay 5s, rate unlimited.
type Config struct {
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	RatePerSec    int
}

func (c Config) withDefaults() Config {
	if c.RetryMax <= 0 {
		c.RetryMax = 10
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 200 * time.Millisecond
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = 5 * time.Second
	}
	return c
}

// Channel delivers messages in publish order to a single attached consumer.
type Channel struct {
	log logx.Logger
	cfg Config

	mu      sync.Mutex
	out     chan Message
	limiter *rate.Limiter
}

// NewChannel creates an unattached channel. Publish will block (bounded)
// until Attach is called; service startup should attach the consumer before
// opening the scheduler to requests.
func NewChannel(cfg Config, log logx.Logger) *Channel {
	cfg = cfg.withDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	c := &Channel{log: log, cfg: cfg}
	if cfg.RatePerSec > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	}
	return c
}

// Attach registers the consumer and returns its delivery channel together
// with a detach func. Attaching replaces any previous consumer.
func (c *Channel) Attach(buffer int) (<-chan Message, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Message, buffer)

	c.mu.Lock()
	c.out = ch
	c.mu.Unlock()

	var once sync.Once
	detach := func() {
		once.Do(func() {
			c.mu.Lock()
			if c.out == ch {
				c.out = nil
			}
			c.mu.Unlock()
			close(ch)
		})
	}
	return ch, detach
}

// Publish delivers msg to the attached consumer, blocking until accepted.
// While no consumer is attached it retries with growing delays and finally
// fails with ErrNoConsumer so callers surface the backpressure instead of
// losing the update.
func (c *Channel) Publish(ctx context.Context, msg Message) error {
	if len(msg.Items) == 0 {
		return nil
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	delay := c.cfg.RetryBase
	for attempt := 0; ; attempt++ {
		c.mu.Lock()
		out := c.out
		c.mu.Unlock()

		if out != nil {
			// recover: the consumer may detach (and close) concurrently
			// with this send; treat that as "no consumer" and retry.
			if c.trySend(ctx, out, msg) {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}

		if attempt >= c.cfg.RetryMax {
			c.log.Error("notification dropped after retries",
				logx.String("event", msg.EventID), logx.Int("attempts", attempt+1))
			return ErrNoConsumer
		}

		c.log.Debug("no notification consumer, backing off",
			logx.String("event", msg.EventID), logx.Duration("delay", delay))
		tmr := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			if !tmr.Stop() {
				<-tmr.C
			}
			return ctx.Err()
		case <-tmr.C:
		}
		delay *= 2
		if delay > c.cfg.RetryMaxDelay {
			delay = c.cfg.RetryMaxDelay
		}
	}
}

func (c *Channel) trySend(ctx context.Context, out chan Message, msg Message) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	select {
	case out <- msg:
		return true
	case <-ctx.Done():
		return false
	}
}
