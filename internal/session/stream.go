package session

import (
	"context"
	"strings"
)

// Chunk is one element of a streamed generation. Exactly one field is set:
// a text fragment, or the terminal error. Errors travel tagged alongside
// fragments rather than folded into the text channel, so a mid-stream
// backend failure and a legitimately short answer stay distinguishable.
type Chunk struct {
	Text string
	Err  error
}

// Stream is a finite, single-consumer sequence of generation fragments.
// Consuming it is destructive; call GenerateStream again for a fresh one.
// The channel closes when the stream ends, whether by completion, error
// (a terminal Chunk with Err set precedes the close), or cancellation
// (no terminal chunk; the consumer's own context says why it ended early).
type Stream struct {
	ch     chan Chunk
	cancel context.CancelFunc
}

// Chunks returns the fragment channel.
func (s *Stream) Chunks() <-chan Chunk { return s.ch }

// Close stops production. Safe to call at any time, including after the
// stream has already finished; it never blocks.
func (s *Stream) Close() { s.cancel() }

// GenerateStream starts a streaming generation on the kind's live session.
// Each call produces a fresh stream. Fragments arrive in backend production
// order with no reordering. Text that is empty after trimming yields an
// already-closed stream without touching the backend. Cancellation of ctx,
// Close on the stream, or disposal of the manager terminates production
// promptly; no fragment is delivered after that point.
func (m *Manager) GenerateStream(ctx context.Context, text string) (*Stream, error) {
	if strings.TrimSpace(text) == "" {
		ch := make(chan Chunk)
		close(ch)
		return &Stream{ch: ch, cancel: func() {}}, nil
	}
	sess, err := m.liveSession()
	if err != nil {
		return nil, err
	}
	release, err := m.beginGeneration(ctx)
	if err != nil {
		return nil, err
	}

	sctx, cancel := joinContexts(ctx, m.baseCtx)
	st := &Stream{ch: make(chan Chunk), cancel: cancel}
	m.publisher.Publish(Event{Name: "stream_start", Kind: m.kind, Fields: map[string]any{}})
	go func() {
		defer release()
		defer cancel()
		defer close(st.ch)
		err := sess.GenerateStream(sctx, text, func(frag string) error {
			// Check before every externally-visible effect so a
			// late-arriving fragment is discarded, not delivered.
			if err := sctx.Err(); err != nil {
				return err
			}
			select {
			case st.ch <- Chunk{Text: frag}:
				return nil
			case <-sctx.Done():
				return sctx.Err()
			}
		})
		switch {
		case err == nil:
			m.publisher.Publish(Event{Name: "stream_done", Kind: m.kind, Fields: map[string]any{}})
		case sctx.Err() != nil:
			// Canceled by the caller or by disposal; the stream just ends.
			m.publisher.Publish(Event{Name: "stream_cancel", Kind: m.kind, Fields: map[string]any{}})
		default:
			// Backend failed mid-stream: deliver one tagged terminal chunk.
			m.log.Warn().Err(err).Msg("stream failed")
			m.publisher.Publish(Event{Name: "stream_error", Kind: m.kind, Fields: map[string]any{"error": err.Error()}})
			select {
			case st.ch <- Chunk{Err: err}:
			case <-sctx.Done():
			}
		}
	}()
	return st, nil
}
