package guard

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"persona-gateway/middleware/guard/domain"
)

const (
	DefaultVisitorCookie     = "vid"
	DefaultFingerprintHeader = "X-Visitor-Fingerprint"
)

const maxFingerprintBytes = 128

// truncateUTF8 corta em no máximo limit bytes sem partir um rune ao meio.
func truncateUTF8(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := 0
	for i := range s {
		if i > limit {
			break
		}
		cut = i
	}
	return s[:cut]
}

// Identity lê (ou emite) o identificador estável do visitante.
type Identity struct {
	CookieName        string
	FingerprintHeader string
	Secure            bool
	MaxAge            time.Duration
}

func (i Identity) cookieName() string {
	if i.CookieName != "" {
		return i.CookieName
	}
	return DefaultVisitorCookie
}

// Lookup devolve o id do cookie, se houver um válido.
func (i Identity) Lookup(r *http.Request) (string, bool) {
	c, err := r.Cookie(i.cookieName())
	if err != nil {
		return "", false
	}
	if _, err := uuid.Parse(c.Value); err != nil {
		return "", false
	}
	return c.Value, true
}

// Visitor devolve o id e o fingerprint do request. Sem cookie válido, gera
// um UUID novo e o grava na resposta.
func (i Identity) Visitor(w http.ResponseWriter, r *http.Request) (id, fingerprint string) {
	fpHeader := i.FingerprintHeader
	if fpHeader == "" {
		fpHeader = DefaultFingerprintHeader
	}
	fingerprint = truncateUTF8(strings.TrimSpace(r.Header.Get(fpHeader)), maxFingerprintBytes)

	if id, ok := i.Lookup(r); ok {
		return id, fingerprint
	}

	maxAge := i.MaxAge
	if maxAge <= 0 {
		maxAge = 365 * 24 * time.Hour
	}
	id = uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     i.cookieName(),
		Value:    id,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   i.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return id, fingerprint
}

// MetaFromRequest extrai os headers usados pelo scorer de bot.
func MetaFromRequest(r *http.Request) domain.RequestMeta {
	h := r.Header
	return domain.RequestMeta{
		UserAgent:         h.Get("User-Agent"),
		HasAcceptLanguage: h.Get("Accept-Language") != "",
		HasAccept:         h.Get("Accept") != "",
		HasBrowserHint:    h.Get("Sec-Fetch-Mode") != "" || h.Get("Sec-CH-UA") != "",
		HasDoNotTrack:     h.Get("DNT") != "",
	}
}
