package session

import (
	"time"

	"github.com/rs/zerolog"

	"genaid/internal/backend"
	"genaid/pkg/types"
)

// Defaults applied when corresponding Config fields are unset.
const (
	defaultMaxQueueDepth = 16
	defaultMaxWait       = 30 * time.Second
)

// Config encapsulates all tunables for Client construction.
type Config struct {
	// Backends maps each kind to its runtime. Kinds with no entry report
	// no-backend on probe and refuse acquisition.
	Backends map[types.Kind]backend.Backend
	// DefaultOptions seed every manager's baseline until a session
	// negotiates its own.
	DefaultOptions types.Options
	// MaxQueueDepth bounds queued generations per kind before backpressure.
	MaxQueueDepth int
	// MaxWait bounds how long a generation waits for admission.
	MaxWait time.Duration

	Publisher EventPublisher
	Logger    zerolog.Logger
}

func (c Config) withDefaults() Config {
	if c.MaxQueueDepth <= 0 {
		c.MaxQueueDepth = defaultMaxQueueDepth
	}
	if c.MaxWait <= 0 {
		c.MaxWait = defaultMaxWait
	}
	if c.Publisher == nil {
		c.Publisher = noopPublisher{}
	}
	return c
}
