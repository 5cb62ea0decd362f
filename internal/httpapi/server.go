package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"genaid/internal/backend"
	"genaid/internal/quiz"
	"genaid/internal/session"
	"genaid/pkg/types"
)

// activationHeader marks a request as originating from a direct user
// interaction. The UI collaborator sets it only inside a genuine
// interaction callback; its presence mints the activation token.
const activationHeader = "X-User-Activation"

// Service defines the methods required by the HTTP API layer.
type Service interface {
	Availability(ctx context.Context, kind types.Kind, force bool) types.Availability
	Acquire(ctx context.Context, kind types.Kind, act session.Activation, opts types.Options, onProgress backend.ProgressFunc) error
	Release(kind types.Kind)
	Options(kind types.Kind) (types.Options, bool)
	Generate(ctx context.Context, kind types.Kind, text string) (string, error)
	GenerateStream(ctx context.Context, kind types.Kind, text string) (*session.Stream, error)
	QuizPair(ctx context.Context, subjectID, subjectText string) (quiz.Pair, error)
	Status() types.StatusResponse
	Ready() bool
}

// NewMux builds the HTTP surface exposed to UI/storage collaborators.
func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(MetricsMiddleware)
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
		}))
	}
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "ready": svc.Ready()})
	})

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(svc.Status()); err != nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
		}
	})

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1/models/{kind}", func(r chi.Router) {
		r.Get("/availability", handleAvailability(svc))
		r.Post("/acquire", handleAcquire(svc))
		r.Delete("/session", handleRelease(svc))
		r.Get("/options", handleOptions(svc))
		r.Post("/generate", handleGenerate(svc))
	})

	r.Post("/v1/quiz/pair", handleQuizPair(svc))

	return r
}

// kindFromRequest parses the {kind} URL parameter.
func kindFromRequest(w http.ResponseWriter, r *http.Request) (types.Kind, bool) {
	kind, err := types.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeJSONError(w, http.StatusNotFound, err.Error())
		return "", false
	}
	return kind, true
}

// decodeJSONBody enforces content type and size limits, then decodes into v.
// An empty body is allowed and leaves v untouched.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, v any) bool {
	ct := r.Header.Get("Content-Type")
	if ct != "" && !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return true
		}
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func handleAvailability(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind, ok := kindFromRequest(w, r)
		if !ok {
			return
		}
		force := r.URL.Query().Get("force") == "1" || r.URL.Query().Get("force") == "true"
		a := svc.Availability(r.Context(), kind, force)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(types.AvailabilityResponse{Kind: kind, Availability: a})
	}
}

// handleAcquire streams NDJSON progress lines while the session is created:
// {"progress":0.4} ... then {"ready":true,"options":{...}}. If acquisition
// fails before any progress line was written, a plain JSON error with the
// mapped status code is returned instead; after the stream has started,
// failure becomes a terminal {"error":...} line.
func handleAcquire(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind, ok := kindFromRequest(w, r)
		if !ok {
			return
		}
		var opts types.Options
		if !decodeJSONBody(w, r, &opts) {
			return
		}
		var act session.Activation
		if r.Header.Get(activationHeader) != "" {
			act = session.UserActivation()
		}

		flush := func() {}
		if f, ok := w.(http.Flusher); ok {
			flush = f.Flush
		}
		wrote := false
		onProgress := func(frac float64) {
			if !wrote {
				w.Header().Set("Content-Type", "application/x-ndjson")
				wrote = true
			}
			line, _ := json.Marshal(map[string]any{"progress": frac})
			_, _ = w.Write(append(line, '\n'))
			flush()
		}

		ctx, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		start := time.Now()
		err := svc.Acquire(ctx, kind, act, opts, onProgress)
		if err != nil {
			observeAcquisition(string(kind), "failure")
			if r.Context().Err() != nil || serverBaseCtx.Err() != nil {
				return
			}
			zlog.Warn().Str("kind", string(kind)).Err(err).Msg("acquire failed")
			if wrote {
				line, _ := json.Marshal(map[string]any{"error": err.Error(), "code": statusForError(err)})
				_, _ = w.Write(append(line, '\n'))
				flush()
				return
			}
			writeMappedError(w, err)
			return
		}
		observeAcquisition(string(kind), "success")
		zlog.Info().Str("kind", string(kind)).Dur("dur", time.Since(start)).Msg("session acquired")
		negotiated, _ := svc.Options(kind)
		if !wrote {
			w.Header().Set("Content-Type", "application/x-ndjson")
		}
		line, _ := json.Marshal(map[string]any{"ready": true, "options": negotiated})
		_, _ = w.Write(append(line, '\n'))
		flush()
	}
}

func handleRelease(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind, ok := kindFromRequest(w, r)
		if !ok {
			return
		}
		svc.Release(kind)
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleOptions(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind, ok := kindFromRequest(w, r)
		if !ok {
			return
		}
		opts, _ := svc.Options(kind)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(opts)
	}
}

func handleGenerate(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind, ok := kindFromRequest(w, r)
		if !ok {
			return
		}
		var req types.GenerateRequest
		if !decodeJSONBody(w, r, &req) {
			return
		}
		ctx, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		if req.Stream {
			streamGenerate(svc, kind, req.Text, ctx, w, r)
			return
		}
		if strings.TrimSpace(req.Text) == "" {
			writeJSONError(w, http.StatusBadRequest, "text is required")
			return
		}
		start := time.Now()
		out, err := svc.Generate(ctx, kind, req.Text)
		if err != nil {
			if r.Context().Err() != nil || serverBaseCtx.Err() != nil {
				return
			}
			writeMappedError(w, err)
			return
		}
		observeGeneration(string(kind), "single", time.Since(start))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(types.GenerateResponse{Output: out})
	}
}

// streamGenerate relays stream chunks as NDJSON lines: {"fragment":...}
// per fragment, then {"done":true}, or a terminal {"error":...} line when
// the backend fails mid-stream. Client disconnects close the stream and end
// the response silently.
func streamGenerate(svc Service, kind types.Kind, text string, ctx context.Context, w http.ResponseWriter, r *http.Request) {
	st, err := svc.GenerateStream(ctx, kind, text)
	if err != nil {
		if r.Context().Err() != nil || serverBaseCtx.Err() != nil {
			return
		}
		writeMappedError(w, err)
		return
	}
	defer st.Close()

	flush := func() {}
	if f, ok := w.(http.Flusher); ok {
		flush = f.Flush
	}
	w.Header().Set("Content-Type", "application/x-ndjson")
	start := time.Now()
	writeLine := func(v map[string]any) bool {
		line, _ := json.Marshal(v)
		if _, err := w.Write(append(line, '\n')); err != nil {
			return false
		}
		flush()
		return true
	}
	for chunk := range st.Chunks() {
		if chunk.Err != nil {
			writeLine(map[string]any{"error": chunk.Err.Error(), "code": statusForError(chunk.Err)})
			return
		}
		if !writeLine(map[string]any{"fragment": chunk.Text}) {
			return
		}
	}
	if ctx.Err() != nil {
		return
	}
	observeGeneration(string(kind), "stream", time.Since(start))
	writeLine(map[string]any{"done": true})
}

func handleQuizPair(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.PairRequest
		if !decodeJSONBody(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.SubjectID) == "" || strings.TrimSpace(req.SubjectText) == "" {
			writeJSONError(w, http.StatusBadRequest, "subject_id and subject_text are required")
			return
		}
		ctx, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		pair, err := svc.QuizPair(ctx, req.SubjectID, req.SubjectText)
		if err != nil {
			if r.Context().Err() != nil || serverBaseCtx.Err() != nil {
				return
			}
			writeMappedError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(types.PairResponse{
			SubjectID:      pair.SubjectID,
			TrueStatement:  pair.TrueStatement,
			FalseStatement: pair.FalseStatement,
		})
	}
}
