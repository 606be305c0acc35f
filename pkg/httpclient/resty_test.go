package httpclient

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDo_AuthVariants(t *testing.T) {
	var gotAuth, gotKey, gotBody, gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotKey = r.Header.Get("X-Tenant-Key")
		gotMethod = r.Method
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	client := New("", 5*time.Second, "")

	tests := []struct {
		name     string
		auth     *Auth
		wantAuth string
		wantKey  string
	}{
		{name: "none", auth: &Auth{Type: AuthNone}},
		{name: "bearer", auth: &Auth{Type: AuthBearer, Token: "t0k"}, wantAuth: "Bearer t0k"},
		{
			name:     "basic",
			auth:     &Auth{Type: AuthBasic, Username: "ops", Password: "pw"},
			wantAuth: "Basic " + base64.StdEncoding.EncodeToString([]byte("ops:pw")),
		},
		{name: "api key", auth: &Auth{Type: AuthAPIKey, HeaderName: "X-Tenant-Key", APIKey: "k1"}, wantKey: "k1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := client.Do(context.Background(), Request{
				Method: "post",
				URL:    srv.URL + "/refresh",
				Body:   `{"date":"2025-01-06"}`,
				Auth:   tt.auth,
			})
			require.NoError(t, err)
			assert.True(t, resp.IsSuccess())
			assert.Equal(t, http.StatusAccepted, resp.StatusCode)
			assert.Equal(t, http.MethodPost, gotMethod)
			assert.Equal(t, tt.wantAuth, gotAuth)
			assert.Equal(t, tt.wantKey, gotKey)
			assert.Equal(t, `{"date":"2025-01-06"}`, gotBody)
		})
	}
}

func TestDo_Non2xxIsNotTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("upstream down"))
	}))
	defer srv.Close()

	resp, err := New("", 5*time.Second, "").Do(context.Background(), Request{Method: http.MethodGet, URL: srv.URL})
	require.NoError(t, err)
	assert.False(t, resp.IsSuccess())
	assert.Equal(t, "upstream down", string(resp.Body))
}

func TestDo_InvalidAuth(t *testing.T) {
	_, err := New("", time.Second, "").Do(context.Background(), Request{
		URL:  "http://127.0.0.1:1",
		Auth: &Auth{Type: "oauth"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported auth type")
}

func TestGet_DecodesResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "42", r.URL.Query().Get("job"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"found"}`))
	}))
	defer srv.Close()

	var out struct {
		Status string `json:"status"`
	}
	resp, err := New(srv.URL, time.Second, "").Get(context.Background(), "/status", map[string]string{"job": "42"}, nil, &out)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "found", out.Status)
}
