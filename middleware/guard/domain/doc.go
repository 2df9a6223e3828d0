// Package domain define contratos e tipos de domínio do guard: níveis de
// confiança (tier), cotas, visitantes, contadores de janela deslizante,
// pontuação de bot e a decisão final allow/deny.
//
// Este pacote não depende de net/http nem de implementações concretas.
// A intenção é permitir testes de unidade puros e desacoplar regras de negócio
// de detalhes de infraestrutura (Redis, memória, Prometheus).
package domain
