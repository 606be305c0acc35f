package telegram

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"automation-scheduler/config"
	"automation-scheduler/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Send(t *testing.T) {
	var gotPath string
	var gotBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":42,"type":"private"}}}`))
	}))
	defer srv.Close()

	client, err := New(config.TelegramConfig{
		BotToken:        "123:abc",
		ChatID:          42,
		TimeoutDuration: 2 * time.Second,
	}, logger.NewNop(), srv.URL)
	require.NoError(t, err)

	require.NoError(t, client.Send(context.Background(), "nightly refresh failed"))
	assert.True(t, strings.HasSuffix(gotPath, "/sendMessage"), gotPath)
	assert.Equal(t, "nightly refresh failed", gotBody["text"])
	assert.Equal(t, "42", gotBody["chat_id"])
}

func TestNew_RequiresTokenAndChat(t *testing.T) {
	_, err := New(config.TelegramConfig{ChatID: 1}, logger.NewNop(), "")
	assert.Error(t, err)
	_, err = New(config.TelegramConfig{BotToken: "x"}, logger.NewNop(), "")
	assert.Error(t, err)
}

func TestFormatJobExecutionMessage(t *testing.T) {
	next := time.Date(2025, 1, 6, 2, 0, 0, 0, time.UTC)
	msg := FormatJobExecutionMessage(JobExecutionMessage{
		ScheduleID:   3,
		ScheduleName: "refresh-ledger",
		JobType:      "ApiCall",
		ExecutionID:  99,
		Status:       "Failed",
		ErrorTag:     "ExecutorFailure",
		ErrorMessage: "http 500",
		RetryCount:   2,
		MaxRetries:   2,
		StartTime:    time.Date(2025, 1, 5, 2, 0, 0, 0, time.UTC),
		Duration:     1500 * time.Millisecond,
		NextRunTime:  &next,
	})

	assert.Contains(t, msg, "❌ [Failed] refresh-ledger")
	assert.Contains(t, msg, "attempt 3 of 3")
	assert.Contains(t, msg, "ExecutorFailure: http 500")
	assert.Contains(t, msg, "06 Jan 2025 02:00 UTC")
}

func TestFormatOrchestrationSummary(t *testing.T) {
	start := time.Date(2025, 1, 24, 6, 0, 0, 0, time.UTC)
	msg := FormatOrchestrationSummary(OrchestrationSummaryMessage{
		RequestID:   "r-1",
		Mode:        "Background",
		Status:      "Completed",
		TriggeredBy: "scheduler",
		StartedAt:   start,
		CompletedAt: start.Add(90 * time.Second),
		Steps: []StepLine{
			{Name: "VerifyCredentials", Processed: 2, Succeeded: 1, Failed: 1, Error: "vendor timeout"},
		},
	})

	assert.Contains(t, msg, "ADR orchestration Completed (Background)")
	assert.Contains(t, msg, "VerifyCredentials: 2 processed, 1 ok, 1 failed (vendor timeout)")
	assert.Contains(t, msg, "took 1m30s")
}
