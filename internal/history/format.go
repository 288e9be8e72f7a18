package history

import (
	"fmt"
	"strings"

	"github.com/fieldserve-io/fieldserve/internal/models"
)

// FormatEntryName converts the raw request_history.name field into a human
// readable label. Workflow entries store structured payloads using
// double-percent (%%) delimiters; we decode the payload based on the
// history type and fall back to a reasonable string otherwise.
func FormatEntryName(entry models.RequestHistoryEntry) string {
	raw := strings.TrimSpace(entry.Name)
	if raw == "" {
		return ""
	}

	if !strings.Contains(raw, "%%") {
		return raw
	}

	parts := splitPayload(raw)
	if len(parts) == 0 {
		return ""
	}

	switch entry.HistoryType {
	case models.HistoryTypeCreated:
		return formatCreated(parts)
	case models.HistoryTypeAcknowledged:
		return formatActor("Request acknowledged", parts)
	case models.HistoryTypeWorkStarted:
		return formatActor("Work started", parts)
	case models.HistoryTypeWorkStopped:
		return formatStopped(parts)
	case models.HistoryTypeClosed:
		return formatClosed(parts)
	case models.HistoryTypeEscalationReminder:
		return formatReminder(parts)
	case models.HistoryTypeEscalationFlagged:
		return "Escalation flagged for manual intervention"
	default:
		return strings.Join(parts, " • ")
	}
}

func splitPayload(raw string) []string {
	tokens := strings.Split(raw, "%%")
	parts := make([]string, 0, len(tokens))
	for _, token := range tokens {
		token = strings.TrimSpace(strings.Trim(strings.TrimSpace(token), ", "))
		if token == "" {
			continue
		}
		parts = append(parts, token)
	}
	return parts
}

func formatCreated(parts []string) string {
	builder := strings.Builder{}
	builder.WriteString("Request created")
	if len(parts) > 0 {
		builder.WriteString(fmt.Sprintf(" (#%s)", parts[0]))
	}
	if len(parts) > 1 {
		builder.WriteString(" • ")
		builder.WriteString(strings.Join(parts[1:], " • "))
	}
	return builder.String()
}

func formatActor(prefix string, parts []string) string {
	if len(parts) > 0 {
		return fmt.Sprintf("%s by %s", prefix, parts[0])
	}
	return prefix
}

func formatStopped(parts []string) string {
	switch len(parts) {
	case 0:
		return "Work session stopped"
	case 1:
		return fmt.Sprintf("Work session stopped by %s", parts[0])
	default:
		return fmt.Sprintf("Work session stopped by %s • %s min", parts[0], parts[1])
	}
}

func formatClosed(parts []string) string {
	builder := strings.Builder{}
	builder.WriteString("Request closed")
	if len(parts) > 0 {
		builder.WriteString(fmt.Sprintf(" by %s", parts[0]))
	}
	if len(parts) > 1 {
		builder.WriteString(fmt.Sprintf(" • reason %s", parts[1]))
	}
	if len(parts) > 2 {
		builder.WriteString(" • ")
		builder.WriteString(parts[2])
	}
	return builder.String()
}

func formatReminder(parts []string) string {
	if len(parts) > 0 {
		return fmt.Sprintf("Reminder sent (attempt %s)", parts[0])
	}
	return "Reminder sent"
}
