package strategy

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"automation-scheduler/pkg/errors"
	"automation-scheduler/pkg/httpclient"
	"automation-scheduler/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApiCallStrategy_Success(t *testing.T) {
	var gotPath, gotAuth, gotBody, gotContentType, gotTrace string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		gotTrace = r.Header.Get("X-Trace")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		_, _ = w.Write([]byte(`{"refreshed":42}`))
	}))
	defer srv.Close()

	s := NewApiCallStrategy(logger.NewNop(), httpclient.New("", 5*time.Second, ""), 1024)
	cfg := `{
		"method": "post",
		"url": "` + srv.URL + `/refresh/{Region}",
		"headers": {"X-Trace": "run-{BatchDate}"},
		"body": {"date": "{BatchDate}"},
		"auth": {"type": "bearer", "token": "secret"}
	}`

	res, err := s.Execute(context.Background(), ExecutionRequest{
		Configuration: json.RawMessage(cfg),
		Parameters:    map[string]string{"Region": "EU", "BatchDate": "2025-01-06"},
	})

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, int32(200), res.ExitCode)
	assert.Equal(t, `{"refreshed":42}`, res.Output)
	assert.Equal(t, "/refresh/EU", gotPath)
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, "run-2025-01-06", gotTrace)
	assert.Equal(t, "application/json", gotContentType)
	assert.JSONEq(t, `{"date":"2025-01-06"}`, gotBody)
}

func TestApiCallStrategy_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("ledger locked"))
	}))
	defer srv.Close()

	s := NewApiCallStrategy(logger.NewNop(), httpclient.New("", 5*time.Second, ""), 1024)
	res, err := s.Execute(context.Background(), ExecutionRequest{
		Configuration: json.RawMessage(`{"method":"GET","url":"` + srv.URL + `/x"}`),
	})

	require.Error(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, int32(500), res.ExitCode)
	assert.Equal(t, "ledger locked", res.Output)
	assert.Contains(t, err.Error(), "returned 500")
	assert.Contains(t, err.Error(), "ledger locked")
	assert.Equal(t, "ExecutorFailure", errors.Tag(err))
}

func TestApiCallStrategy_CancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeoutCause(context.Background(), 100*time.Millisecond, errors.ErrTimeoutExceeded)
	defer cancel()

	s := NewApiCallStrategy(logger.NewNop(), httpclient.New("", 0, ""), 1024)
	_, err := s.Execute(ctx, ExecutionRequest{
		Configuration: json.RawMessage(`{"url":"` + srv.URL + `"}`),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrExecutorFailure))
}

func TestApiCallStrategy_Validate(t *testing.T) {
	s := NewApiCallStrategy(logger.NewNop(), httpclient.New("", time.Second, ""), 1024)

	valid := []string{
		`{"url":"https://erp.local/api/{Path}"}`,
		`{"method":"DELETE","url":"http://{Host}/x","auth":{"type":"api_key","api_key":"k"}}`,
	}
	for _, raw := range valid {
		assert.NoError(t, s.Validate(json.RawMessage(raw)), raw)
	}

	invalid := []string{
		`{}`,
		`{"url":"/relative"}`,
		`{"url":"ftp://files.local/x"}`,
		`{"method":"TRACE","url":"https://x.local"}`,
		`{"url":"https://x.local","auth":{"type":"oauth2"}}`,
		`{"url":"https://x.local","auth":{"type":"basic"}}`,
	}
	for _, raw := range invalid {
		err := s.Validate(json.RawMessage(raw))
		require.Error(t, err, raw)
		assert.True(t, errors.Is(err, errors.ErrScheduleConfiguration), raw)
	}
}

func TestApiCallConfig_BodyString(t *testing.T) {
	assert.Equal(t, "plain text", ApiCallConfig{Body: json.RawMessage(`"plain text"`)}.BodyString())
	assert.Equal(t, `{"a":1}`, ApiCallConfig{Body: json.RawMessage(`{"a":1}`)}.BodyString())
	assert.Equal(t, "", ApiCallConfig{Body: json.RawMessage(`null`)}.BodyString())
	assert.Equal(t, "", ApiCallConfig{}.BodyString())
}
