package domain

import (
	"context"
	"time"
)

// Visitor representa um navegador/dispositivo único entre sessões.
//
// Os campos de revelação (Name, Email, Contacted) só são preenchidos, nunca
// apagados; por isso o tier derivado é monotônico.
type Visitor struct {
	ID          string `redis:"-"`
	Fingerprint string `redis:"fingerprint"`

	Name      string `redis:"name"`
	Email     string `redis:"email"`
	Contacted bool   `redis:"contacted"`
	Blocked   bool   `redis:"blocked"`

	Messages int64 `redis:"messages"`
	Sites    int64 `redis:"sites"`

	FirstSeenMs int64 `redis:"first_seen_ms"`

	Tier Tier `redis:"-"`
}

func (v Visitor) FirstSeen() time.Time { return time.UnixMilli(v.FirstSeenMs) }

// DisclosureKind identifica um evento que pode elevar o tier.
type DisclosureKind string

const (
	DiscloseName      DisclosureKind = "name"
	DiscloseEmail     DisclosureKind = "email"
	DiscloseContacted DisclosureKind = "contacted"
)

type Disclosure struct {
	Kind  DisclosureKind
	Value string
}

// VisitorStore é o colaborador de identidade: resolve (ou cria) o registro do
// visitante e aplica eventos de revelação.
//
// Implementações devem preencher Visitor.Tier em todo retorno.
type VisitorStore interface {
	// Resolve busca o visitante; se não existir, cria.
	Resolve(ctx context.Context, id, fingerprint string) (Visitor, error)
	Disclose(ctx context.Context, id string, d Disclosure) (Visitor, error)
	SetBlocked(ctx context.Context, id string, blocked bool) error
	RecordUsage(ctx context.Context, id string, op Operation) error
}
