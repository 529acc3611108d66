package session

import (
	"encoding/json"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/danmuck/blocksdk/internal/origin"
)

const (
	DefaultRetryBudget = 5
	DefaultRetryDelay  = 20 * time.Millisecond
)

// RetryPolicy bounds how long a call waits for the handshake.
type RetryPolicy struct {
	// MaxRetries is the budget given to a call sent without an explicit one.
	MaxRetries int
	// Delay is the fixed wait between attempts.
	Delay time.Duration
}

// Config defines session construction options.
type Config struct {
	// Whitelist holds host-suffix terms for parent validation. Nil selects the default term.
	Whitelist []string
	// AllowInsecure relaxes origin validation to accept http:// parents.
	AllowInsecure bool
	Retry         RetryPolicy
	// CallTimeout removes pending calls that were never answered. Zero keeps them until Close.
	CallTimeout time.Duration
	Clock       clock.Clock
	// OnNotify receives messages from the trusted parent that carry a method but no id. Nil
	// leaves them to the null callback.
	OnNotify NotifyFunc
}

// NotifyFunc handles an editor-initiated message.
type NotifyFunc func(method string, payload json.RawMessage)

// DefaultConfig returns the defaults used by the hosted SDK.
func DefaultConfig() Config {
	return Config{
		Retry: RetryPolicy{
			MaxRetries: DefaultRetryBudget,
			Delay:      DefaultRetryDelay,
		},
	}
}

// WithDefaults fills unset fields. A negative MaxRetries disables retrying.
func (c Config) WithDefaults() Config {
	if c.Retry.MaxRetries == 0 {
		c.Retry.MaxRetries = DefaultRetryBudget
	}
	if c.Retry.MaxRetries < 0 {
		c.Retry.MaxRetries = 0
	}
	if c.Retry.Delay <= 0 {
		c.Retry.Delay = DefaultRetryDelay
	}
	if c.CallTimeout < 0 {
		c.CallTimeout = 0
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	return c
}

func (c Config) validator() *origin.Validator {
	return origin.New(c.Whitelist, c.AllowInsecure)
}
