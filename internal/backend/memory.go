package backend

import (
	"context"
	"strings"
	"sync"
	"time"

	"genaid/pkg/types"
)

// MemoryConfig scripts a Memory backend.
type MemoryConfig struct {
	// Availability returned by probes. Defaults to ready.
	Availability types.Availability
	// ProbeErr, when set, is returned by every probe.
	ProbeErr error
	// CreateErr, when set, fails every creation after progress is emitted.
	CreateErr error
	// Progress fractions emitted during Create, in order.
	Progress []float64
	// Gate, when non-nil, blocks Create until the channel is closed.
	Gate chan struct{}
	// Script maps input text to a reply; unmatched text echoes.
	Script map[string]string
	// FragmentDelay paces streamed fragments.
	FragmentDelay time.Duration
	// GenerateErr, when set, fails every single-shot generation.
	GenerateErr error
	// StreamErr, when set, is returned after all fragments were streamed,
	// simulating a mid-stream backend failure.
	StreamErr error
}

// Memory is a scripted in-memory Backend. It serves tests and lets the
// daemon run without a real runtime attached.
type Memory struct {
	cfg MemoryConfig

	mu        sync.Mutex
	probes    int
	creates   int
	generates int
	streams   int
	disposes  int
}

var _ Backend = (*Memory)(nil)

// NewMemory constructs a scripted backend.
func NewMemory(cfg MemoryConfig) *Memory {
	if cfg.Availability == "" {
		cfg.Availability = types.AvailabilityReady
	}
	return &Memory{cfg: cfg}
}

// Probes returns how many availability probes have run.
func (m *Memory) Probes() int { m.mu.Lock(); defer m.mu.Unlock(); return m.probes }

// Creates returns how many creation attempts reached the backend.
func (m *Memory) Creates() int { m.mu.Lock(); defer m.mu.Unlock(); return m.creates }

// Generates returns how many single-shot generations have run.
func (m *Memory) Generates() int { m.mu.Lock(); defer m.mu.Unlock(); return m.generates }

// Streams returns how many streaming generations have started.
func (m *Memory) Streams() int { m.mu.Lock(); defer m.mu.Unlock(); return m.streams }

// Disposes returns how many sessions have been disposed.
func (m *Memory) Disposes() int { m.mu.Lock(); defer m.mu.Unlock(); return m.disposes }

// SetAvailability changes what subsequent probes report.
func (m *Memory) SetAvailability(a types.Availability) {
	m.mu.Lock()
	m.cfg.Availability = a
	m.mu.Unlock()
}

// SetGenerateErr changes what subsequent single-shot generations return.
func (m *Memory) SetGenerateErr(err error) {
	m.mu.Lock()
	m.cfg.GenerateErr = err
	m.mu.Unlock()
}

func (m *Memory) ProbeAvailability(ctx context.Context) (types.Availability, error) {
	m.mu.Lock()
	m.probes++
	a, err := m.cfg.Availability, m.cfg.ProbeErr
	m.mu.Unlock()
	if err != nil {
		return types.AvailabilityUnavailable, err
	}
	return a, nil
}

func (m *Memory) Create(ctx context.Context, opts types.Options, onProgress ProgressFunc) (Session, error) {
	m.mu.Lock()
	m.creates++
	cfg := m.cfg
	m.mu.Unlock()

	for _, f := range cfg.Progress {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if onProgress != nil {
			onProgress(f)
		}
	}
	if cfg.Gate != nil {
		select {
		case <-cfg.Gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg.CreateErr != nil {
		return nil, cfg.CreateErr
	}
	// Same clamping a real runtime applies.
	if opts.Temperature < 0 {
		opts.Temperature = 0
	}
	if opts.Temperature > maxTemperature {
		opts.Temperature = maxTemperature
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = defaultMaxTokens
	}
	return &memorySession{backend: m, opts: opts}, nil
}

func (m *Memory) reply(text string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if out, ok := m.cfg.Script[text]; ok {
		return out
	}
	return "echo: " + text
}

type memorySession struct {
	backend *Memory
	opts    types.Options

	mu       sync.Mutex
	disposed bool
}

var _ Session = (*memorySession)(nil)

func (s *memorySession) Options() types.Options { return s.opts }

func (s *memorySession) Dispose() error {
	s.mu.Lock()
	s.disposed = true
	s.mu.Unlock()
	s.backend.mu.Lock()
	s.backend.disposes++
	s.backend.mu.Unlock()
	return nil
}

func (s *memorySession) live() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return ErrGenerationFailed("session disposed")
	}
	return nil
}

func (s *memorySession) Generate(ctx context.Context, text string) (string, error) {
	if err := s.live(); err != nil {
		return "", err
	}
	s.backend.mu.Lock()
	s.backend.generates++
	genErr := s.backend.cfg.GenerateErr
	s.backend.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if genErr != nil {
		return "", genErr
	}
	return s.backend.reply(text), nil
}

func (s *memorySession) GenerateStream(ctx context.Context, text string, onFragment func(string) error) error {
	if err := s.live(); err != nil {
		return err
	}
	s.backend.mu.Lock()
	s.backend.streams++
	delay := s.backend.cfg.FragmentDelay
	streamErr := s.backend.cfg.StreamErr
	s.backend.mu.Unlock()

	for _, frag := range splitFragments(s.backend.reply(text)) {
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := onFragment(frag); err != nil {
			return err
		}
	}
	if streamErr != nil {
		return streamErr
	}
	return ctx.Err()
}

// splitFragments cuts a reply into word fragments, each keeping its
// trailing space, the way token streams arrive from real runtimes.
func splitFragments(s string) []string {
	words := strings.Fields(s)
	frags := make([]string, 0, len(words))
	for i, w := range words {
		if i < len(words)-1 {
			frags = append(frags, w+" ")
		} else {
			frags = append(frags, w)
		}
	}
	return frags
}
