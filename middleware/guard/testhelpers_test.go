package guard

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"

	"persona-gateway/middleware/guard/application"
	"persona-gateway/middleware/guard/domain"
	"persona-gateway/middleware/guard/infra"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// browserRequest monta um request com os headers de um navegador comum.
func browserRequest(method, target string) *http.Request {
	r := httptest.NewRequest(method, target, nil)
	r.RemoteAddr = "10.0.0.1:1234"
	r.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0 Safari/537.36")
	r.Header.Set("Accept", "text/html,application/json")
	r.Header.Set("Accept-Language", "en-US,en;q=0.9")
	r.Header.Set("Sec-Fetch-Mode", "cors")
	return r
}

// withVisitor repete o cookie emitido em uma resposta anterior.
func withVisitor(r *http.Request, w *httptest.ResponseRecorder) *http.Request {
	for _, c := range w.Result().Cookies() {
		if c.Name == DefaultVisitorCookie {
			r.AddCookie(c)
		}
	}
	return r
}

type memoryStack struct {
	guard    *application.Guard
	counters *infra.MemoryCounterStore
	visitors *infra.MemoryVisitorStore
	stats    *infra.MemoryStatsStore
}

func newMemoryStack(policy domain.Policy) memoryStack {
	s := memoryStack{
		counters: infra.NewMemoryCounterStore(),
		visitors: infra.NewMemoryVisitorStore(),
		stats:    infra.NewMemoryStatsStore(),
	}
	s.guard = application.NewGuard(policy, s.counters, s.visitors, quietLogger())
	return s
}

// fixedDecision é um Evaluator que sempre devolve a mesma decisão.
type fixedDecision domain.Decision

func (f fixedDecision) Evaluate(context.Context, domain.Request) domain.Decision {
	return domain.Decision(f)
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "ok")
})
