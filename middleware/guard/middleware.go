package guard

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"persona-gateway/middleware/guard/domain"
)

// Evaluator é o contrato do guard consumido pelo middleware.
type Evaluator interface {
	Evaluate(ctx context.Context, req domain.Request) domain.Decision
}

type Options struct {
	Guard     Evaluator
	Operation domain.Operation

	Identity           Identity
	KeyFn              KeyFunc
	TrustXForwardedFor bool

	// Visitors, se presente, recebe o uso acumulado após respostas 2xx/3xx.
	Visitors domain.VisitorStore
	Stats    domain.StatsStore
	Logger   *slog.Logger
	Now      func() time.Time
}

type denyBody struct {
	Error             string        `json:"error"`
	Reason            domain.Reason `json:"reason,omitempty"`
	Message           string        `json:"message"`
	Hint              string        `json:"hint,omitempty"`
	Remaining         *int          `json:"remaining,omitempty"`
	ResetAt           int64         `json:"reset_at,omitempty"`
	RetryAfterSeconds int64         `json:"retry_after_seconds,omitempty"`
}

// Middleware protege um endpoint caro (chat ou geração de site) com o Guard.
func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.KeyFn == nil {
		opts.KeyFn = ClientIP(opts.TrustXForwardedFor)
	}
	if opts.Operation == "" {
		opts.Operation = domain.OpMessage
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, fp := opts.Identity.Visitor(w, r)
			ip := opts.KeyFn(r)

			dec := opts.Guard.Evaluate(r.Context(), domain.Request{
				Operation:   opts.Operation,
				VisitorID:   id,
				Fingerprint: fp,
				IP:          ip,
				Meta:        MetaFromRequest(r),
			})
			now := opts.Now()
			record(r, opts, dec, id, now)

			if !dec.Allowed {
				writeDenial(w, r, dec, now)
				return
			}

			if !dec.Bypassed {
				w.Header().Set("X-RateLimit-Remaining", formatInt(dec.Remaining))
				if !dec.ResetAt.IsZero() {
					w.Header().Set("X-RateLimit-Reset", formatInt64(dec.ResetAt.Unix()))
				}
			}

			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)

			if opts.Visitors != nil && sw.status < http.StatusBadRequest {
				// contexto próprio: o do request pode já ter sido cancelado pelo cliente.
				ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), time.Second)
				defer cancel()
				if err := opts.Visitors.RecordUsage(ctx, id, opts.Operation); err != nil {
					opts.Logger.Warn("record usage failed", "visitor", id, "op", string(opts.Operation), "error", err)
				}
			}
		})
	}
}

func record(r *http.Request, opts Options, dec domain.Decision, id string, now time.Time) {
	if opts.Stats == nil {
		return
	}
	_ = opts.Stats.Record(r.Context(), domain.StatsEvent{
		Key:       domain.Key(id),
		Operation: opts.Operation,
		Allowed:   dec.Allowed,
		Reason:    dec.Reason,
		BotScore:  dec.Bot.Score,
		Method:    r.Method,
		Path:      r.URL.Path,
		At:        now,
	})
}

func writeDenial(w http.ResponseWriter, r *http.Request, dec domain.Decision, now time.Time) {
	l := langFor(r)

	switch {
	case dec.Reason.Quota():
		wait := dec.RetryAfter(now)
		remaining := dec.Remaining
		w.Header().Set("Retry-After", formatInt64(int64(wait/time.Second)))
		w.Header().Set("X-RateLimit-Remaining", formatInt(remaining))
		w.Header().Set("X-RateLimit-Reset", formatInt64(dec.ResetAt.Unix()))
		writeJSON(w, http.StatusTooManyRequests, denyBody{
			Error:             "rate_limited",
			Reason:            dec.Reason,
			Message:           quotaMessage(l, dec.Reason, wait),
			Hint:              upgradeHint(l, dec.Reason, dec.Visitor.Tier),
			Remaining:         &remaining,
			ResetAt:           dec.ResetAt.UnixMilli(),
			RetryAfterSeconds: int64(wait / time.Second),
		})

	case dec.Reason == domain.ReasonBot || dec.Reason == domain.ReasonBlocked:
		// corpo genérico: não revela qual sinal disparou.
		writeJSON(w, http.StatusForbidden, denyBody{
			Error:   "forbidden",
			Message: genericMessages[l][http.StatusForbidden],
		})

	default:
		writeJSON(w, http.StatusServiceUnavailable, denyBody{
			Error:   "unavailable",
			Message: genericMessages[l][http.StatusServiceUnavailable],
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusWriter guarda o status escrito pelo handler seguinte.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (s *statusWriter) WriteHeader(code int) {
	if !s.wroteHeader {
		s.status = code
		s.wroteHeader = true
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusWriter) Write(b []byte) (int, error) {
	s.wroteHeader = true
	return s.ResponseWriter.Write(b)
}

// Flush mantém o streaming do completion funcionando através do wrapper.
func (s *statusWriter) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *statusWriter) Unwrap() http.ResponseWriter { return s.ResponseWriter }
