package history

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fieldserve-io/fieldserve/internal/models"
)

func TestFormatEntryName(t *testing.T) {
	cases := []struct {
		name        string
		historyType string
		raw         string
		want        string
	}{
		{
			name:        "created with number and title",
			historyType: models.HistoryTypeCreated,
			raw:         "SR-20260310-0001%%HVAC unit down",
			want:        "Request created (#SR-20260310-0001) • HVAC unit down",
		},
		{
			name:        "acknowledged",
			historyType: models.HistoryTypeAcknowledged,
			raw:         "%%Tomas Vega",
			want:        "Request acknowledged by Tomas Vega",
		},
		{
			name:        "work started",
			historyType: models.HistoryTypeWorkStarted,
			raw:         "%%Tomas Vega",
			want:        "Work started by Tomas Vega",
		},
		{
			name:        "work stopped with minutes",
			historyType: models.HistoryTypeWorkStopped,
			raw:         "%%Tomas Vega%%90",
			want:        "Work session stopped by Tomas Vega • 90 min",
		},
		{
			name:        "closed with reason",
			historyType: models.HistoryTypeClosed,
			raw:         "%%Tomas Vega%%3",
			want:        "Request closed by Tomas Vega • reason 3",
		},
		{
			name:        "reminder attempt",
			historyType: models.HistoryTypeEscalationReminder,
			raw:         "%%2",
			want:        "Reminder sent (attempt 2)",
		},
		{
			name:        "flagged ignores payload",
			historyType: models.HistoryTypeEscalationFlagged,
			raw:         "%%anything",
			want:        "Escalation flagged for manual intervention",
		},
		{
			name:        "plain text passes through",
			historyType: models.HistoryTypeAcknowledged,
			raw:         "manual note from dispatcher",
			want:        "manual note from dispatcher",
		},
		{
			name:        "unknown type joins parts",
			historyType: "SomethingElse",
			raw:         "a%%b",
			want:        "a • b",
		},
		{
			name: "empty",
			raw:  "   ",
			want: "",
		},
		{
			name:        "payload with stray separators",
			historyType: models.HistoryTypeWorkStopped,
			raw:         "%% Tomas Vega , %% 30 ",
			want:        "Work session stopped by Tomas Vega • 30 min",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := FormatEntryName(models.RequestHistoryEntry{
				HistoryType: tc.historyType,
				Name:        tc.raw,
			})
			assert.Equal(t, tc.want, got)
		})
	}
}
