package session

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"genaid/internal/backend"
	"genaid/internal/quiz"
	"genaid/pkg/types"
)

// Client is the caller-facing entry point: one Manager per kind plus the
// quiz pair memo. Construct one at process start and pass it by reference
// to whatever needs it; there is deliberately no package-level instance.
type Client struct {
	managers map[types.Kind]*Manager
	pairs    *quiz.Pairs
	started  time.Time
}

// NewClient constructs managers for every kind. Kinds missing from
// cfg.Backends get a manager that reports no-backend and refuses
// acquisition until reconfigured.
func NewClient(cfg Config) *Client {
	cfg = cfg.withDefaults()
	c := &Client{
		managers: make(map[types.Kind]*Manager, len(types.Kinds())),
		pairs:    quiz.NewPairs(),
		started:  time.Now(),
	}
	for _, k := range types.Kinds() {
		c.managers[k] = newManager(k, cfg.Backends[k], cfg)
	}
	return c
}

// Manager returns the lifecycle manager for a kind.
func (c *Client) Manager(kind types.Kind) (*Manager, bool) {
	m, ok := c.managers[kind]
	return m, ok
}

// Availability probes the kind, honoring the per-kind cache.
func (c *Client) Availability(ctx context.Context, kind types.Kind, force bool) types.Availability {
	m, ok := c.managers[kind]
	if !ok {
		return types.AvailabilityNoBackend
	}
	return m.Probe(ctx, force)
}

// Acquire ensures a live session for the kind. See Manager.Acquire.
func (c *Client) Acquire(ctx context.Context, kind types.Kind, act Activation, opts types.Options, onProgress backend.ProgressFunc) error {
	m, ok := c.managers[kind]
	if !ok {
		return capabilityAbsentError{kind: kind}
	}
	return m.Acquire(ctx, act, opts, onProgress)
}

// Release disposes the kind's session if present. Never fails.
func (c *Client) Release(kind types.Kind) {
	if m, ok := c.managers[kind]; ok {
		m.Release()
	}
}

// ReleaseAll disposes every kind's session, e.g. on shutdown.
func (c *Client) ReleaseAll() {
	for _, m := range c.managers {
		m.Release()
	}
}

// Options returns the kind's negotiated options snapshot.
func (c *Client) Options(kind types.Kind) (types.Options, bool) {
	m, ok := c.managers[kind]
	if !ok {
		return types.Options{}, false
	}
	return m.CurrentOptions(), true
}

// Generate runs a single-shot generation on the kind's session.
func (c *Client) Generate(ctx context.Context, kind types.Kind, text string) (string, error) {
	m, ok := c.managers[kind]
	if !ok {
		return "", capabilityAbsentError{kind: kind}
	}
	return m.Generate(ctx, text)
}

// GenerateStream starts a streaming generation on the kind's session.
func (c *Client) GenerateStream(ctx context.Context, kind types.Kind, text string) (*Stream, error) {
	m, ok := c.managers[kind]
	if !ok {
		return nil, capabilityAbsentError{kind: kind}
	}
	return m.GenerateStream(ctx, text)
}

// Ready reports whether any kind has a live session.
func (c *Client) Ready() bool {
	for _, m := range c.managers {
		if m.Ready() {
			return true
		}
	}
	return false
}

// Status builds the /status projection.
func (c *Client) Status() types.StatusResponse {
	resp := types.StatusResponse{
		CachedPairs:    c.pairs.Len(),
		UptimeSeconds:  int64(time.Since(c.started).Seconds()),
		ServerTimeUnix: time.Now().Unix(),
	}
	for _, k := range types.Kinds() {
		resp.Sessions = append(resp.Sessions, c.managers[k].Status())
	}
	return resp
}

// QuizPair returns the memoized true/false statement pair for a subject,
// generating it on first use with two concurrent single-shot calls on the
// prompt session. The pair stays stable for the life of the process so a
// re-rendered quiz question never swaps statements under the user.
func (c *Client) QuizPair(ctx context.Context, subjectID, subjectText string) (quiz.Pair, error) {
	return c.pairs.Get(ctx, subjectID, func(ctx context.Context) (quiz.Pair, error) {
		m := c.managers[types.KindPrompt]
		g, gctx := errgroup.WithContext(ctx)
		var trueStmt, falseStmt string
		g.Go(func() error {
			out, err := m.Generate(gctx, trueStatementPrompt(subjectText))
			trueStmt = strings.TrimSpace(out)
			return err
		})
		g.Go(func() error {
			out, err := m.Generate(gctx, falseStatementPrompt(subjectText))
			falseStmt = strings.TrimSpace(out)
			return err
		})
		if err := g.Wait(); err != nil {
			return quiz.Pair{}, err
		}
		return quiz.Pair{TrueStatement: trueStmt, FalseStatement: falseStmt}, nil
	})
}

func trueStatementPrompt(subject string) string {
	return "Write one short statement that is TRUE about the following text. " +
		"Reply with only the statement.\n\n" + subject
}

func falseStatementPrompt(subject string) string {
	return "Write one short statement that is subtly FALSE about the following text. " +
		"Reply with only the statement.\n\n" + subject
}
