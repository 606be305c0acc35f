package telegram

import (
	"fmt"
	"strings"
	"time"

	"automation-scheduler/pkg/utils"
)

// JobExecutionMessage is the view rendered for a finished scheduled job.
type JobExecutionMessage struct {
	ScheduleID   uint
	ScheduleName string
	JobType      string
	ExecutionID  uint
	Status       string
	ErrorTag     string
	ErrorMessage string
	Output       string
	RetryCount   int
	MaxRetries   int
	StartTime    time.Time
	Duration     time.Duration
	NextRunTime  *time.Time
}

// StepLine is one orchestration step in a summary.
type StepLine struct {
	Name      string
	Processed int
	Succeeded int
	Failed    int
	Error     string
}

// OrchestrationSummaryMessage is the view rendered after an ADR orchestration run.
type OrchestrationSummaryMessage struct {
	RequestID   string
	Mode        string
	Status      string
	TriggeredBy string
	StartedAt   time.Time
	CompletedAt time.Time
	Steps       []StepLine
	Error       string
}

func FormatJobExecutionMessage(m JobExecutionMessage) string {
	var b strings.Builder

	emoji := "✅"
	switch m.Status {
	case "Failed":
		emoji = "❌"
	case "Cancelled":
		emoji = "🚫"
	}

	b.WriteString(fmt.Sprintf("%s [%s] %s\n", emoji, m.Status, m.ScheduleName))
	b.WriteString(fmt.Sprintf("🔧 %s job #%d, execution #%d\n", m.JobType, m.ScheduleID, m.ExecutionID))
	b.WriteString(fmt.Sprintf("🕒 %s (%s)\n", utils.PrettyDate(m.StartTime), m.Duration.Round(time.Millisecond)))
	if m.RetryCount > 0 || m.MaxRetries > 0 {
		b.WriteString(fmt.Sprintf("🔁 attempt %d of %d\n", m.RetryCount+1, m.MaxRetries+1))
	}
	if m.ErrorTag != "" || m.ErrorMessage != "" {
		b.WriteString(fmt.Sprintf("⚠️ %s: %s\n", m.ErrorTag, utils.Truncate(m.ErrorMessage, 500)))
	}
	if m.Output != "" {
		b.WriteString(fmt.Sprintf("📄 %s\n", utils.Truncate(m.Output, 500)))
	}
	if m.NextRunTime != nil {
		b.WriteString(fmt.Sprintf("⏭ next run %s\n", utils.PrettyDate(*m.NextRunTime)))
	}
	return b.String()
}

func FormatOrchestrationSummary(m OrchestrationSummaryMessage) string {
	var b strings.Builder

	emoji := "✅"
	switch m.Status {
	case "Failed":
		emoji = "❌"
	case "Cancelled":
		emoji = "🚫"
	}

	b.WriteString(fmt.Sprintf("%s ADR orchestration %s (%s)\n", emoji, m.Status, m.Mode))
	b.WriteString(fmt.Sprintf("🆔 %s by %s\n", m.RequestID, m.TriggeredBy))
	b.WriteString(fmt.Sprintf("🕒 %s, took %s\n", utils.PrettyDate(m.StartedAt), m.CompletedAt.Sub(m.StartedAt).Round(time.Second)))
	for _, s := range m.Steps {
		line := fmt.Sprintf("• %s: %d processed, %d ok, %d failed", s.Name, s.Processed, s.Succeeded, s.Failed)
		if s.Error != "" {
			line += " (" + utils.Truncate(s.Error, 200) + ")"
		}
		b.WriteString(line + "\n")
	}
	if m.Error != "" {
		b.WriteString(fmt.Sprintf("⚠️ %s\n", utils.Truncate(m.Error, 500)))
	}
	return b.String()
}

func FormatErrorAlertMessage(t time.Time, errType string, errMsg string, data string) string {
	return fmt.Sprintf(`📛 [ERROR ALERT]
%s
🔧 %s
⚠️ %s

📄 Data: %s
`, utils.PrettyDate(t), errType, errMsg, data)
}
