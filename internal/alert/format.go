package alert

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ppiankov/sitaware/internal/audit"
)

// FormatPayload builds the webhook body for the given format.
func FormatPayload(format string, event Event) ([]byte, error) {
	switch format {
	case "slack":
		return formatSlack(event)
	case "pagerduty":
		return formatPagerDuty(event)
	default:
		return formatGeneric(event)
	}
}

func formatGeneric(event Event) ([]byte, error) {
	return json.Marshal(event)
}

func formatSlack(event Event) ([]byte, error) {
	payload := map[string]any{
		"blocks": []any{
			map[string]any{
				"type": "header",
				"text": map[string]any{
					"type": "plain_text",
					"text": fmt.Sprintf("sitaware: %s", event.Outcome),
				},
			},
			map[string]any{
				"type": "section",
				"fields": []any{
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Location:* %s", event.UserLocation)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Command:* %s", event.UserCommand)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Actions:* %s", event.ActualActions)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Why:* %s", detail(event))},
				},
			},
		},
	}
	return json.Marshal(payload)
}

func formatPagerDuty(event Event) ([]byte, error) {
	payload := map[string]any{
		"event_action": "trigger",
		"payload": map[string]any{
			"summary":  fmt.Sprintf("sitaware %s: %s", event.Outcome, event.ActualActions),
			"severity": severityFor(event),
			"source":   "sitaware",
			"custom_details": map[string]any{
				"session_id":    event.SessionID,
				"user_location": event.UserLocation,
				"user_command":  event.UserCommand,
				"reasons":       event.Reasons,
				"error_class":   event.ErrorClass,
				"error":         event.Error,
			},
		},
	}
	return json.Marshal(payload)
}

func severityFor(event Event) string {
	if event.Anomalous() {
		return "critical"
	}
	switch event.Outcome {
	case audit.OutcomeError:
		return "error"
	default:
		return "info"
	}
}

func detail(event Event) string {
	if event.Error != "" {
		return event.Error
	}
	if len(event.Reasons) == 0 {
		return "-"
	}
	return strings.Join(event.Reasons, "; ")
}
