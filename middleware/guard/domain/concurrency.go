package domain

import "context"

// SlotPool reserva vagas no serviço de completion: cada chamada de chat ou de
// geração de site ocupa uma vaga enquanto o upstream responde.
//
// Acquire espera por uma vaga livre ou pelo fim do ctx. O release devolvido
// libera a vaga quando o upstream termina.
type SlotPool interface {
	Acquire(ctx context.Context) (release func(), ok bool)
}
