package infra

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"persona-gateway/middleware/guard/domain"
)

// PrometheusStatsStore expõe as decisões do guard como métricas.
//
// Labels de baixa cardinalidade apenas (operação, resultado, motivo);
// a chave do visitante nunca vira label.
type PrometheusStatsStore struct {
	decisions *prometheus.CounterVec
	botScores *prometheus.HistogramVec
}

func NewPrometheusStatsStore(reg prometheus.Registerer) (*PrometheusStatsStore, error) {
	s := &PrometheusStatsStore{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "guard",
			Name:      "decisions_total",
			Help:      "Guard decisions by operation, outcome and denial reason.",
		}, []string{"operation", "outcome", "reason"}),
		botScores: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "guard",
			Name:      "bot_score",
			Help:      "Bot heuristic score of evaluated requests.",
			Buckets:   []float64{0, 10, 25, 50, 65, 80, 100},
		}, []string{"operation"}),
	}
	for _, c := range []prometheus.Collector{s.decisions, s.botScores} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *PrometheusStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	outcome := "denied"
	if ev.Allowed {
		outcome = "allowed"
	}
	s.decisions.WithLabelValues(string(ev.Operation), outcome, string(ev.Reason)).Inc()
	s.botScores.WithLabelValues(string(ev.Operation)).Observe(float64(ev.BotScore))
	return nil
}

// MultiStatsStore grava em vários stores; devolve o primeiro erro.
type MultiStatsStore []domain.StatsStore

func (m MultiStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	var first error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Record(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}
