package guard

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"
	"unicode/utf8"

	"persona-gateway/middleware/guard/domain"
)

// QuotaReporter devolve a cota restante sem consumir nada.
type QuotaReporter interface {
	Remaining(ctx context.Context, req domain.Request) (domain.QuotaReport, error)
}

type QuotaOptions struct {
	Guard              QuotaReporter
	Identity           Identity
	KeyFn              KeyFunc
	TrustXForwardedFor bool
	Logger             *slog.Logger
}

type opQuota struct {
	Remaining int           `json:"remaining"`
	Limit     int           `json:"limit"`
	ResetAt   int64         `json:"reset_at,omitempty"`
	Unlimited bool          `json:"unlimited"`
	LimitedBy domain.Reason `json:"limited_by,omitempty"`
}

type quotaBody struct {
	Tier     domain.Tier `json:"tier"`
	TierName string      `json:"tier_name"`
	Messages opQuota     `json:"messages"`
	Sites    opQuota     `json:"sites"`
}

func toOpQuota(rep domain.QuotaReport) opQuota {
	var out opQuota
	if n := len(rep.Checks); n > 0 {
		tier := rep.Checks[n-1]
		out.Limit = tier.Capacity
		out.Unlimited = tier.Unlimited
	}
	if lim, ok := rep.Limiting(); ok {
		out.Remaining = lim.Remaining
		out.ResetAt = lim.ResetAt.UnixMilli()
		out.LimitedBy = lim.Reason
	}
	return out
}

// QuotaHandler responde GET /api/quota com o saldo das duas operações.
func QuotaHandler(opts QuotaOptions) http.Handler {
	if opts.KeyFn == nil {
		opts.KeyFn = ClientIP(opts.TrustXForwardedFor)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, fp := opts.Identity.Visitor(w, r)
		req := domain.Request{VisitorID: id, Fingerprint: fp, IP: opts.KeyFn(r)}

		var body quotaBody
		for _, op := range []domain.Operation{domain.OpMessage, domain.OpSite} {
			req.Operation = op
			rep, err := opts.Guard.Remaining(r.Context(), req)
			if err != nil {
				opts.Logger.Error("quota lookup failed", "visitor", id, "op", string(op), "error", err)
				writeJSON(w, http.StatusServiceUnavailable, denyBody{
					Error:   "unavailable",
					Message: genericMessages[langFor(r)][http.StatusServiceUnavailable],
				})
				return
			}
			body.Tier = rep.Tier
			if op == domain.OpMessage {
				body.Messages = toOpQuota(rep)
			} else {
				body.Sites = toOpQuota(rep)
			}
		}
		body.TierName = body.Tier.String()
		writeJSON(w, http.StatusOK, body)
	})
}

const (
	maxNameLen  = 100
	maxEmailLen = 254
)

type DisclosureOptions struct {
	Visitors domain.VisitorStore
	Identity Identity
	Logger   *slog.Logger
}

type disclosureInput struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	// Website é o honeypot: invisível para humanos.
	Website string `json:"website"`
}

type disclosureBody struct {
	Tier     domain.Tier `json:"tier"`
	TierName string      `json:"tier_name"`
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func (in disclosureInput) disclosures() ([]domain.Disclosure, error) {
	var out []domain.Disclosure
	if name := strings.TrimSpace(in.Name); name != "" {
		if utf8.RuneCountInString(name) > maxNameLen {
			return nil, errors.New("name too long")
		}
		out = append(out, domain.Disclosure{Kind: domain.DiscloseName, Value: name})
	}
	if email := strings.TrimSpace(in.Email); email != "" {
		addr, err := mail.ParseAddress(email)
		if err != nil || len(addr.Address) > maxEmailLen || addr.Address != email {
			return nil, errors.New("invalid email")
		}
		out = append(out, domain.Disclosure{Kind: domain.DiscloseEmail, Value: strings.ToLower(addr.Address)})
	}
	if len(out) == 0 {
		return nil, errors.New("name or email required")
	}
	return out, nil
}

// DisclosureHandler responde POST /api/visitor/disclose: nome e/ou email
// elevam o tier do visitante.
func DisclosureHandler(opts DisclosureOptions) http.Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "method_not_allowed"})
			return
		}
		id, _ := opts.Identity.Visitor(w, r)

		var in disclosureInput
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10)).Decode(&in); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_body"})
			return
		}
		if strings.TrimSpace(in.Website) != "" {
			opts.Logger.Info("honeypot filled, disclosure dropped", "visitor", id)
			w.WriteHeader(http.StatusNoContent)
			return
		}

		ds, err := in.disclosures()
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_disclosure", Message: err.Error()})
			return
		}

		var v domain.Visitor
		for _, d := range ds {
			v, err = opts.Visitors.Disclose(r.Context(), id, d)
			if err != nil {
				opts.Logger.Error("disclosure failed", "visitor", id, "kind", string(d.Kind), "error", err)
				writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "unavailable"})
				return
			}
		}
		opts.Logger.Info("visitor disclosed identity", "visitor", id, "tier", v.Tier.String())
		writeJSON(w, http.StatusOK, disclosureBody{Tier: v.Tier, TierName: v.Tier.String()})
	})
}

// Admin agrupa as ações manuais sobre visitantes (contato feito, bloqueio).
type Admin struct {
	Visitors domain.VisitorStore
	// Token vazio desliga a área admin.
	Token   string
	IDParam func(r *http.Request) string
	Logger  *slog.Logger
}

func (a Admin) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}

// Authorize exige "Authorization: Bearer <token>".
func (a Admin) Authorize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.Token == "" {
			http.NotFound(w, r)
			return
		}
		got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(a.Token)) != 1 {
			w.Header().Set("WWW-Authenticate", `Bearer realm="admin"`)
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a Admin) visitorID(w http.ResponseWriter, r *http.Request) (string, bool) {
	var id string
	if a.IDParam != nil {
		id = strings.TrimSpace(a.IDParam(r))
	}
	if id == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "missing_visitor_id"})
		return "", false
	}
	return id, true
}

// Contacted marca o visitante como contatado (tier 4, sem limite).
func (a Admin) Contacted(w http.ResponseWriter, r *http.Request) {
	id, ok := a.visitorID(w, r)
	if !ok {
		return
	}
	v, err := a.Visitors.Disclose(r.Context(), id, domain.Disclosure{Kind: domain.DiscloseContacted})
	if err != nil {
		a.fail(w, "contacted", id, err)
		return
	}
	a.logger().Info("admin marked visitor contacted", "visitor", id)
	writeJSON(w, http.StatusOK, disclosureBody{Tier: v.Tier, TierName: v.Tier.String()})
}

func (a Admin) Block(w http.ResponseWriter, r *http.Request)   { a.setBlocked(w, r, true) }
func (a Admin) Unblock(w http.ResponseWriter, r *http.Request) { a.setBlocked(w, r, false) }

func (a Admin) setBlocked(w http.ResponseWriter, r *http.Request, blocked bool) {
	id, ok := a.visitorID(w, r)
	if !ok {
		return
	}
	if err := a.Visitors.SetBlocked(r.Context(), id, blocked); err != nil {
		a.fail(w, "set blocked", id, err)
		return
	}
	a.logger().Info("admin changed visitor block", "visitor", id, "blocked", blocked)
	w.WriteHeader(http.StatusNoContent)
}

func (a Admin) fail(w http.ResponseWriter, action, id string, err error) {
	if errors.Is(err, domain.ErrInvalidVisitor) {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_visitor"})
		return
	}
	a.logger().Error("admin action failed", "action", action, "visitor", id, "error", err)
	writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "unavailable"})
}
