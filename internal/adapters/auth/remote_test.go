package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPVerifier_Verify(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantUserID string
		wantErr    bool
	}{
		{
			name:       "sub claim",
			status:     http.StatusOK,
			body:       `{"sub":"user-1","email":"a@example.com","roles":["captain"],"exp":1893456000}`,
			wantUserID: "user-1",
		},
		{
			name:       "uid fallback",
			status:     http.StatusOK,
			body:       `{"uid":"user-2","email":"b@example.com"}`,
			wantUserID: "user-2",
		},
		{
			name:    "rejected token",
			status:  http.StatusUnauthorized,
			body:    `{"error":"invalid_token"}`,
			wantErr: true,
		},
		{
			name:    "malformed body",
			status:  http.StatusOK,
			body:    `{`,
			wantErr: true,
		},
		{
			name:    "no subject",
			status:  http.StatusOK,
			body:    `{"email":"c@example.com"}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotAuth string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotAuth = r.Header.Get("Authorization")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			v := NewHTTPVerifier(srv.Client(), srv.URL)
			identity, err := v.Verify(context.Background(), "tok-1")
			assert.Equal(t, "Bearer tok-1", gotAuth)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantUserID, identity.UserID)
		})
	}
}

func TestHTTPVerifier_Verify_contextDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	v := NewHTTPVerifier(srv.Client(), srv.URL)
	_, err := v.Verify(ctx, "tok-1")
	require.Error(t, err)
}
