package guard

import (
	"net/http"
	"strconv"
	"time"

	"persona-gateway/middleware/guard/application"
	"persona-gateway/middleware/guard/domain"
)

// ThrottleOptions configura o token bucket local (por processo) dos endpoints
// baratos. Não conta para as cotas do visitante.
type ThrottleOptions struct {
	Store               domain.LimiterStore
	KeyFn               KeyFunc
	TrustXForwardedFor  bool
	RejectStatus        int
	RetryAfter          time.Duration
	AddRateLimitHeaders bool
}

type rateInfo interface {
	RPS() float64
	Burst() int
}

func Throttle(opts ThrottleOptions) func(next http.Handler) http.Handler {
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusTooManyRequests
	}
	if opts.RetryAfter == 0 {
		opts.RetryAfter = 1 * time.Second
	}
	if opts.KeyFn == nil {
		opts.KeyFn = ClientIP(opts.TrustXForwardedFor)
	}

	svc := application.ThrottleService{
		Store:      opts.Store,
		RetryAfter: opts.RetryAfter,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := opts.KeyFn(r)

			if opts.AddRateLimitHeaders {
				if ri, ok := opts.Store.(rateInfo); ok {
					w.Header().Set("X-Throttle-RPS", strconv.FormatFloat(ri.RPS(), 'f', -1, 64))
					w.Header().Set("X-Throttle-Burst", formatInt(ri.Burst()))
				}
			}

			dec := svc.Decide(domain.Key(key))
			if !dec.Allowed {
				w.Header().Set("Retry-After", formatInt(int(dec.RetryAfter.Seconds())))
				http.Error(w, http.StatusText(opts.RejectStatus), opts.RejectStatus)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
