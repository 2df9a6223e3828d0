package domain

// MaxBotScore é o teto da pontuação de suspeita.
const MaxBotScore = 100

// RequestMeta são os metadados do request usados pelo scorer.
// Ausência de header é sinal, não erro.
type RequestMeta struct {
	UserAgent         string
	HasAcceptLanguage bool
	HasAccept         bool
	// HasBrowserHint: Sec-Fetch-Mode ou Sec-CH-UA presentes.
	HasBrowserHint bool
	HasDoNotTrack  bool
}

// BotScore é efêmero: calculado por request e nunca persistido.
type BotScore struct {
	Score       int
	Reasons     []string
	Allowlisted bool
	Bot         bool
}
