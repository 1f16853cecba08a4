package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func serve(h func(http.Handler) http.Handler, header, value string) int {
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	if header != "" {
		req.Header.Set(header, value)
	}
	rec := httptest.NewRecorder()
	h(okHandler).ServeHTTP(rec, req)
	return rec.Code
}

func TestRequireAdmin_AllowsAdminKey_BlocksPublicKey(t *testing.T) {
	keys := Keys{Public: []string{"pub_key"}, Admin: []string{"adm_key"}}

	if got := serve(RequireAdmin(keys), "X-API-Key", "adm_key"); got != http.StatusOK {
		t.Fatalf("admin key should pass; got %d", got)
	}
	if got := serve(RequireAdmin(keys), "Authorization", "Bearer adm_key"); got != http.StatusOK {
		t.Fatalf("bearer admin key should pass; got %d", got)
	}
	if got := serve(RequireAdmin(keys), "X-API-Key", "pub_key"); got != http.StatusForbidden {
		t.Fatalf("public key should be forbidden; got %d", got)
	}
	if got := serve(RequireAdmin(keys), "", ""); got != http.StatusUnauthorized {
		t.Fatalf("missing key should be 401; got %d", got)
	}
}

func TestRequireAny_AcceptsBothKinds(t *testing.T) {
	keys := Keys{Public: []string{"pub_key"}, Admin: []string{"adm_key"}}

	for _, k := range []string{"pub_key", "adm_key"} {
		if got := serve(RequireAny(keys), "X-API-Key", k); got != http.StatusOK {
			t.Fatalf("%s should pass; got %d", k, got)
		}
	}
	if got := serve(RequireAny(keys), "X-API-Key", "pub_ke"); got != http.StatusUnauthorized {
		t.Fatalf("prefix of a key must not pass; got %d", got)
	}
	if got := serve(RequireAny(Keys{}), "", ""); got != http.StatusOK {
		t.Fatalf("no keys configured should allow; got %d", got)
	}
}

func TestRequireAny_MarksAdminCallers(t *testing.T) {
	cases := []struct {
		name  string
		keys  Keys
		key   string
		admin bool
	}{
		{"admin key", Keys{Public: []string{"pub_key"}, Admin: []string{"adm_key"}}, "adm_key", true},
		{"public key", Keys{Public: []string{"pub_key"}, Admin: []string{"adm_key"}}, "pub_key", false},
		{"no admin keys configured", Keys{Public: []string{"pub_key"}}, "pub_key", true},
		{"no keys configured", Keys{}, "", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var got bool
			h := RequireAny(tc.keys)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = IsAdmin(r.Context())
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.key != "" {
				req.Header.Set("X-API-Key", tc.key)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)
			if got != tc.admin {
				t.Fatalf("want admin=%v, got %v", tc.admin, got)
			}
		})
	}
}
