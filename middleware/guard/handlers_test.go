package guard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"persona-gateway/middleware/guard/domain"
)

func postJSON(target, body string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	r.RemoteAddr = "10.0.0.1:1234"
	r.Header.Set("Content-Type", "application/json")
	return r
}

func TestQuotaHandler_ReportsWithoutConsuming(t *testing.T) {
	st := newMemoryStack(domain.DefaultPolicy())
	chat := Middleware(Options{Guard: st.guard, Logger: quietLogger()})(okHandler)
	quota := QuotaHandler(QuotaOptions{Guard: st.guard, Logger: quietLogger()})

	first := httptest.NewRecorder()
	chat.ServeHTTP(first, browserRequest(http.MethodPost, "http://example/api/chat"))

	var body quotaBody
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		quota.ServeHTTP(w, withVisitor(browserRequest(http.MethodGet, "http://example/api/quota"), first))
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
		body = quotaBody{}
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
	}

	if body.Tier != domain.TierAnonymous || body.TierName != "anonymous" {
		t.Fatalf("unexpected tier: %+v", body)
	}
	if body.Messages.Remaining != 9 || body.Messages.Limit != 10 || body.Messages.LimitedBy != domain.ReasonTierMessage {
		t.Fatalf("unexpected message quota: %+v", body.Messages)
	}
	if body.Sites.Remaining != 1 || body.Sites.Limit != 1 {
		t.Fatalf("unexpected site quota: %+v", body.Sites)
	}
}

func TestQuotaHandler_UnlimitedTier(t *testing.T) {
	st := newMemoryStack(domain.DefaultPolicy())
	quota := QuotaHandler(QuotaOptions{Guard: st.guard, Logger: quietLogger()})

	w1 := httptest.NewRecorder()
	quota.ServeHTTP(w1, browserRequest(http.MethodGet, "http://example/api/quota"))
	vid, _ := Identity{}.Lookup(withVisitor(httptest.NewRequest(http.MethodGet, "http://example/", nil), w1))
	if _, err := st.visitors.Disclose(context.Background(), vid, domain.Disclosure{Kind: domain.DiscloseContacted}); err != nil {
		t.Fatalf("disclose: %v", err)
	}

	w := httptest.NewRecorder()
	quota.ServeHTTP(w, withVisitor(browserRequest(http.MethodGet, "http://example/api/quota"), w1))
	var body quotaBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Tier != domain.TierContacted || !body.Messages.Unlimited || !body.Sites.Unlimited {
		t.Fatalf("expected unlimited quotas, got %+v", body)
	}
	// o limite que resta é o global.
	if body.Messages.LimitedBy != domain.ReasonGlobal {
		t.Fatalf("expected global to be the limiting check, got %q", body.Messages.LimitedBy)
	}
}

func TestDisclosureHandler_UpgradesTier(t *testing.T) {
	st := newMemoryStack(domain.DefaultPolicy())
	h := DisclosureHandler(DisclosureOptions{Visitors: st.visitors, Logger: quietLogger()})

	w := httptest.NewRecorder()
	h.ServeHTTP(w, postJSON("http://example/api/visitor/disclose", `{"name":"Ana","email":"ana@example.com"}`))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var body disclosureBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Tier != domain.TierEmailed {
		t.Fatalf("expected tier 3, got %d", body.Tier)
	}

	// revelar só o nome depois não rebaixa.
	w2 := httptest.NewRecorder()
	r2 := withVisitor(postJSON("http://example/api/visitor/disclose", `{"name":"Ana Maria"}`), w)
	h.ServeHTTP(w2, r2)
	body = disclosureBody{}
	_ = json.NewDecoder(w2.Body).Decode(&body)
	if body.Tier != domain.TierEmailed {
		t.Fatalf("expected tier to stay 3, got %d", body.Tier)
	}
}

func TestDisclosureHandler_HoneypotIsDropped(t *testing.T) {
	st := newMemoryStack(domain.DefaultPolicy())
	h := DisclosureHandler(DisclosureOptions{Visitors: st.visitors, Logger: quietLogger()})

	w := httptest.NewRecorder()
	h.ServeHTTP(w, postJSON("http://example/api/visitor/disclose", `{"name":"Bot","website":"http://spam.example"}`))
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	vid, _ := Identity{}.Lookup(withVisitor(httptest.NewRequest(http.MethodGet, "http://example/", nil), w))
	v, _ := st.visitors.Resolve(context.Background(), vid, "")
	if v.Name != "" || v.Tier != domain.TierAnonymous {
		t.Fatalf("expected honeypot submission to be ignored, got %+v", v)
	}
}

func TestDisclosureHandler_RejectsBadInput(t *testing.T) {
	st := newMemoryStack(domain.DefaultPolicy())
	h := DisclosureHandler(DisclosureOptions{Visitors: st.visitors, Logger: quietLogger()})

	cases := []string{
		`{}`,
		`{"email":"not-an-email"}`,
		`{"email":"Ana <ana@example.com>"}`,
		`{"name":"` + strings.Repeat("a", 101) + `"}`,
		`not json`,
	}
	for _, c := range cases {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, postJSON("http://example/api/visitor/disclose", c))
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", c, w.Code)
		}
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "http://example/api/visitor/disclose", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}
}

func newTestAdmin(st memoryStack, id string) Admin {
	return Admin{
		Visitors: st.visitors,
		Token:    "s3cret",
		IDParam:  func(*http.Request) string { return id },
		Logger:   quietLogger(),
	}
}

func adminRequest(token string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "http://example/admin/visitors/x/block", nil)
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	return r
}

func TestAdmin_RequiresToken(t *testing.T) {
	st := newMemoryStack(domain.DefaultPolicy())
	a := newTestAdmin(st, "v1")
	h := a.Authorize(http.HandlerFunc(a.Block))

	for _, token := range []string{"", "wrong"} {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, adminRequest(token))
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("token %q: expected 401, got %d", token, w.Code)
		}
	}

	// sem token configurado a área admin não existe.
	a.Token = ""
	w := httptest.NewRecorder()
	a.Authorize(http.HandlerFunc(a.Block)).ServeHTTP(w, adminRequest("s3cret"))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 when admin is disabled, got %d", w.Code)
	}
}

func TestAdmin_BlockThenGuardDenies(t *testing.T) {
	st := newMemoryStack(domain.DefaultPolicy())
	chat := Middleware(Options{Guard: st.guard, Logger: quietLogger()})(okHandler)

	first := httptest.NewRecorder()
	chat.ServeHTTP(first, browserRequest(http.MethodPost, "http://example/api/chat"))
	vid, _ := Identity{}.Lookup(withVisitor(httptest.NewRequest(http.MethodGet, "http://example/", nil), first))

	a := newTestAdmin(st, vid)
	w := httptest.NewRecorder()
	a.Authorize(http.HandlerFunc(a.Block)).ServeHTTP(w, adminRequest("s3cret"))
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}

	denied := httptest.NewRecorder()
	chat.ServeHTTP(denied, withVisitor(browserRequest(http.MethodPost, "http://example/api/chat"), first))
	if denied.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for blocked visitor, got %d", denied.Code)
	}

	w = httptest.NewRecorder()
	a.Authorize(http.HandlerFunc(a.Unblock)).ServeHTTP(w, adminRequest("s3cret"))
	allowed := httptest.NewRecorder()
	chat.ServeHTTP(allowed, withVisitor(browserRequest(http.MethodPost, "http://example/api/chat"), first))
	if allowed.Code != http.StatusOK {
		t.Fatalf("expected 200 after unblock, got %d", allowed.Code)
	}
}

func TestAdmin_ContactedIsUnlimited(t *testing.T) {
	st := newMemoryStack(domain.DefaultPolicy())
	a := newTestAdmin(st, "v-contacted")

	w := httptest.NewRecorder()
	a.Authorize(http.HandlerFunc(a.Contacted)).ServeHTTP(w, adminRequest("s3cret"))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body disclosureBody
	_ = json.NewDecoder(w.Body).Decode(&body)
	if body.Tier != domain.TierContacted || body.TierName != "contacted" {
		t.Fatalf("expected contacted tier, got %+v", body)
	}

	missing := newTestAdmin(st, "")
	w = httptest.NewRecorder()
	missing.Authorize(http.HandlerFunc(missing.Contacted)).ServeHTTP(w, adminRequest("s3cret"))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without id, got %d", w.Code)
	}
}
