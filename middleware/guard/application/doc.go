// Package application contém os casos de uso do guard: limiter de janela
// deslizante, gate composto, scorer de bot, a facade Guard e os serviços de
// throttle local e de concorrência.
//
// Ele depende apenas do pacote domain e não conhece net/http.
// Ex.: Guard.Evaluate(ctx, req) retorna uma Decision (allow/deny + motivo + reset).
package application
