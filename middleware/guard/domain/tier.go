package domain

import "strconv"

// Tier é o nível de confiança de um visitante, derivado de quanta identidade
// ele já revelou.
type Tier int

const (
	TierAnonymous Tier = 1
	TierNamed     Tier = 2
	TierEmailed   Tier = 3
	TierContacted Tier = 4
)

func (t Tier) Valid() bool { return t >= TierAnonymous && t <= TierContacted }

// Max devolve o maior dos dois tiers. Usado para nunca rebaixar um visitante.
func (t Tier) Max(other Tier) Tier {
	if other > t {
		return other
	}
	return t
}

func (t Tier) String() string {
	switch t {
	case TierAnonymous:
		return "anonymous"
	case TierNamed:
		return "named"
	case TierEmailed:
		return "emailed"
	case TierContacted:
		return "contacted"
	}
	return "tier(" + strconv.Itoa(int(t)) + ")"
}

// TierFor calcula o tier a partir do estado de revelação do visitante.
func TierFor(v Visitor) Tier {
	switch {
	case v.Contacted:
		return TierContacted
	case v.Email != "":
		return TierEmailed
	case v.Name != "":
		return TierNamed
	default:
		return TierAnonymous
	}
}
