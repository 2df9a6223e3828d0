package application

import (
	"regexp"
	"strings"

	"persona-gateway/middleware/guard/domain"
)

// Pesos do scorer. A soma é limitada a [0, domain.MaxBotScore].
const (
	weightEmptyUA          = 30
	weightAutomationUA     = 40
	weightNoAcceptLanguage = 15
	weightNoAccept         = 10
	weightNoBrowserHint    = 5
	weightDoNotTrack       = -5

	// allowlistedScore é a nota fixa de crawlers conhecidos.
	allowlistedScore = 5
)

// Crawlers benignos passam sempre: bloquear derruba indexação e previews.
var allowlistedUA = regexp.MustCompile(`(?i)(googlebot|google-inspectiontool|bingbot|duckduckbot|yandex(bot|images)|baiduspider|applebot|slurp|facebookexternalhit|facebot|twitterbot|linkedinbot|slackbot|discordbot|telegrambot|whatsapp|pinterest(bot)?|redditbot|embedly)`)

var automationUA = regexp.MustCompile(`(?i)(bot\b|bot/|crawler|spider|scraper|scrapy|curl/|wget/|python-requests|python-urllib|aiohttp|httpx|go-http-client|java/|okhttp|axios/|node-fetch|undici|libwww-perl|postmanruntime|insomnia|headlesschrome|phantomjs|selenium|puppeteer|playwright|httpclient)`)

// BotScorer é uma função pura sobre os headers do request.
type BotScorer struct {
	Policy domain.BotPolicy
}

func (s BotScorer) threshold() int {
	if s.Policy.ClassifyThreshold > 0 {
		return s.Policy.ClassifyThreshold
	}
	return domain.DefaultPolicy().Bot.ClassifyThreshold
}

func (s BotScorer) Score(m domain.RequestMeta) domain.BotScore {
	ua := strings.TrimSpace(m.UserAgent)

	if ua != "" && allowlistedUA.MatchString(ua) {
		return domain.BotScore{Score: allowlistedScore, Reasons: []string{"allowlisted crawler"}, Allowlisted: true}
	}

	score := 0
	var reasons []string
	add := func(w int, reason string) {
		score += w
		reasons = append(reasons, reason)
	}

	if ua == "" {
		add(weightEmptyUA, "empty user-agent")
	} else if automationUA.MatchString(ua) {
		add(weightAutomationUA, "automation user-agent")
	}
	if !m.HasAcceptLanguage {
		add(weightNoAcceptLanguage, "missing accept-language")
	}
	if !m.HasAccept {
		add(weightNoAccept, "missing accept")
	}
	if !m.HasBrowserHint {
		add(weightNoBrowserHint, "missing browser hint")
	}
	if m.HasDoNotTrack {
		add(weightDoNotTrack, "do-not-track present")
	}

	score = min(max(score, 0), domain.MaxBotScore)
	return domain.BotScore{Score: score, Reasons: reasons, Bot: score >= s.threshold()}
}
