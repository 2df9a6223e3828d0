// Package guard fornece adapters HTTP (net/http) para o controle de acesso do
// chat e da geração de sites: identidade do visitante, IP do cliente, o
// middleware do Guard, throttle local, limite de concorrência e os handlers de
// cota, revelação de identidade e administração.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos do domínio (sem dependência de net/http)
//   - application: casos de uso (limiter, gate, scorer de bot, facade Guard)
//   - infra: implementações concretas (Redis, memória, Prometheus, token bucket)
//   - guard (este pacote): middlewares/handlers HTTP + tradução para status/headers
//
// Fluxo no gateway:
//
//   1) Lê/cria o cookie do visitante e extrai o IP do cliente (XFF/RemoteAddr)
//   2) Chama Guard.Evaluate com os headers do request
//   3) Se negado, responde 429 (cota), 403 (bot/bloqueado) ou 503 (store fora)
//   4) Se permitido, chama o próximo handler (ex: reverse proxy do completion)
package guard
