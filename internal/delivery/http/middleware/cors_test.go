package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCORS(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name        string
		allowed     []string
		origin      string
		preflight   bool
		wantStatus  int
		wantOrigin  string
		wantCreds   string
		wantMethods string
	}{
		{name: "allowed origin", allowed: []string{"https://app.example.com/"}, origin: "https://app.example.com", wantStatus: http.StatusOK, wantOrigin: "https://app.example.com", wantCreds: "true"},
		{name: "unknown origin", allowed: []string{"https://app.example.com"}, origin: "https://evil.example.com", wantStatus: http.StatusOK},
		{name: "preflight allowed", allowed: []string{"https://app.example.com"}, origin: "https://app.example.com", preflight: true, wantStatus: http.StatusNoContent, wantOrigin: "https://app.example.com", wantCreds: "true", wantMethods: corsAllowMethods},
		{name: "preflight unknown origin", allowed: []string{"https://app.example.com"}, origin: "https://evil.example.com", preflight: true, wantStatus: http.StatusNoContent},
		{name: "wildcard", allowed: []string{"*"}, origin: "https://any.example.com", wantStatus: http.StatusOK, wantOrigin: "*"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := http.MethodGet
			if tt.preflight {
				method = http.MethodOptions
			}
			req := httptest.NewRequest(method, "http://test/invites/me", nil)
			req.Header.Set("Origin", tt.origin)
			if tt.preflight {
				req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			}
			rr := httptest.NewRecorder()

			CORS(tt.allowed, next).ServeHTTP(rr, req)

			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.Equal(t, tt.wantOrigin, rr.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, tt.wantCreds, rr.Header().Get("Access-Control-Allow-Credentials"))
			assert.Equal(t, tt.wantMethods, rr.Header().Get("Access-Control-Allow-Methods"))
		})
	}
}
