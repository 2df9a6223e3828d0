package guard

import (
	"net/http"
	"strings"
	"time"

	"persona-gateway/middleware/guard/domain"
)

type lang string

const (
	langPT lang = "pt"
	langEN lang = "en"
)

// langFor escolhe pt ou en pelo primeiro idioma do Accept-Language.
func langFor(r *http.Request) lang {
	first, _, _ := strings.Cut(r.Header.Get("Accept-Language"), ",")
	first = strings.ToLower(strings.TrimSpace(first))
	if strings.HasPrefix(first, "pt") {
		return langPT
	}
	return langEN
}

var quotaMessages = map[lang]map[domain.Reason]string{
	langPT: {
		domain.ReasonGlobal:      "O assistente está ocupado agora. Tente novamente em %s.",
		domain.ReasonIPHourly:    "Muitas requisições da sua rede. Tente novamente em %s.",
		domain.ReasonIPDaily:     "Muitas requisições da sua rede hoje. Tente novamente em %s.",
		domain.ReasonTierMessage: "Você atingiu o limite de mensagens. Novas mensagens em %s.",
		domain.ReasonTierSite:    "Você atingiu o limite de sites gerados. Tente novamente em %s.",
	},
	langEN: {
		domain.ReasonGlobal:      "The assistant is busy right now. Try again in %s.",
		domain.ReasonIPHourly:    "Too many requests from your network. Try again in %s.",
		domain.ReasonIPDaily:     "Too many requests from your network today. Try again in %s.",
		domain.ReasonTierMessage: "You've reached your message limit. More messages in %s.",
		domain.ReasonTierSite:    "You've reached your site generation limit. Try again in %s.",
	},
}

var upgradeHints = map[lang]map[domain.Tier]string{
	langPT: {
		domain.TierAnonymous: "Diga seu nome para liberar mais mensagens.",
		domain.TierNamed:     "Deixe seu email para liberar mais mensagens.",
	},
	langEN: {
		domain.TierAnonymous: "Tell us your name to unlock more messages.",
		domain.TierNamed:     "Leave your email to unlock more messages.",
	},
}

var genericMessages = map[lang]map[int]string{
	langPT: {
		http.StatusForbidden:          "Acesso negado.",
		http.StatusServiceUnavailable: "Serviço temporariamente indisponível. Tente novamente em instantes.",
	},
	langEN: {
		http.StatusForbidden:          "Access denied.",
		http.StatusServiceUnavailable: "Service temporarily unavailable. Please try again shortly.",
	},
}

// quotaMessage monta a mensagem de negação por cota com a contagem regressiva.
func quotaMessage(l lang, reason domain.Reason, wait time.Duration) string {
	tpl, ok := quotaMessages[l][reason]
	if !ok {
		tpl = quotaMessages[l][domain.ReasonGlobal]
	}
	return strings.Replace(tpl, "%s", formatCountdown(wait), 1)
}

// upgradeHint só existe para negações de cota do tier em tiers que ainda sobem.
func upgradeHint(l lang, reason domain.Reason, tier domain.Tier) string {
	if reason != domain.ReasonTierMessage && reason != domain.ReasonTierSite {
		return ""
	}
	return upgradeHints[l][tier]
}
