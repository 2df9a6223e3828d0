package guard

import (
	"net/http"
	"time"

	"persona-gateway/middleware/guard/application"
	"persona-gateway/middleware/guard/domain"
	"persona-gateway/middleware/guard/infra"
)

// ConcurrencyOptions limita quantas chamadas ao completion ficam em voo ao
// mesmo tempo neste processo.
//
// Pool, se presente, substitui o semáforo criado a partir de Max (útil para
// expor a ocupação em métricas).
type ConcurrencyOptions struct {
	Pool           domain.SlotPool
	Max            int
	RejectStatus   int
	AcquireTimeout time.Duration
}

func ConcurrencyLimit(opts ConcurrencyOptions) func(next http.Handler) http.Handler {
	if opts.Pool == nil && opts.Max <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.Pool == nil {
		opts.Pool = infra.NewChanPool(opts.Max)
	}
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusServiceUnavailable
	}

	svc := application.ConcurrencyService{
		Pool:           opts.Pool,
		AcquireTimeout: opts.AcquireTimeout,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			release, ok := svc.Acquire(r.Context())
			if !ok {
				w.Header().Set("Retry-After", "1")
				writeJSON(w, opts.RejectStatus, denyBody{
					Error:   "busy",
					Message: genericMessages[langFor(r)][http.StatusServiceUnavailable],
				})
				return
			}
			defer release()

			next.ServeHTTP(w, r)
		})
	}
}
