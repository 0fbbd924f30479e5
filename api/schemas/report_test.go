package schemas_test

import (
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/xkilldash9x/widgetpilot/api/schemas"
)

// TestStructJSONTags pins the report field names consumers parse.
func TestStructJSONTags(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		name         string
		structRef    interface{}
		expectedTags map[string]string
	}{
		{
			name:      "RunReport",
			structRef: schemas.RunReport{},
			expectedTags: map[string]string{
				"RunID":      "run_id",
				"Tool":       "tool",
				"Version":    "version",
				"Driver":     "driver",
				"TargetURL":  "target_url",
				"StartedAt":  "started_at",
				"FinishedAt": "finished_at",
				"Summary":    "summary",
				"Results":    "results",
			},
		},
		{
			name:      "ScenarioResult",
			structRef: schemas.ScenarioResult{},
			expectedTags: map[string]string{
				"Name":        "name",
				"Description": "description",
				"Status":      "status",
				"StartedAt":   "started_at",
				"DurationMS":  "duration_ms",
				"Tries":       "tries",
				"FailureKind": "failure_kind,omitempty",
				"Error":       "error,omitempty",
				"Assertions":  "assertions,omitempty",
				"Attempts":    "attempts,omitempty",
				"Artifact":    "artifact,omitempty",
				"Degraded":    "degraded,omitempty",
				"Notes":       "notes,omitempty",
			},
		},
		{
			name:      "AttemptRecord",
			structRef: schemas.AttemptRecord{},
			expectedTags: map[string]string{
				"Strategy":   "strategy",
				"Action":     "action",
				"Outcome":    "outcome",
				"Matches":    "matches",
				"Error":      "error,omitempty",
				"DurationMS": "duration_ms",
			},
		},
	}

	for _, tc := range testCases {
		tt := tc
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			structType := reflect.TypeOf(tt.structRef)
			actualTags := make(map[string]string)
			for i := 0; i < structType.NumField(); i++ {
				field := structType.Field(i)
				if tag := field.Tag.Get("json"); tag != "" {
					actualTags[field.Name] = tag
				}
			}
			assert.Equal(t, tt.expectedTags, actualTags, "JSON tags for struct %s do not match expectations", tt.name)
		})
	}
}

func TestStatusValues(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "passed", string(schemas.StatusPassed))
	assert.Equal(t, "failed", string(schemas.StatusFailed))
	assert.Equal(t, "skipped", string(schemas.StatusSkipped))
}

func TestRunReportSummary(t *testing.T) {
	t.Parallel()
	start := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	r := &schemas.RunReport{
		StartedAt:  start,
		FinishedAt: start.Add(42 * time.Second),
		Results: []schemas.ScenarioResult{
			{Name: "page-loads", Status: schemas.StatusPassed},
			{Name: "copy-code", Status: schemas.StatusPassed},
			{Name: "no-theme-generate", Status: schemas.StatusSkipped},
		},
	}
	r.Summarize()
	assert.Equal(t, schemas.Summary{Total: 3, Passed: 2, Skipped: 1}, r.Summary)
	assert.True(t, r.OK())
	assert.Equal(t, 42*time.Second, r.Duration())

	r.Results = append(r.Results, schemas.ScenarioResult{Name: "step3-size", Status: schemas.StatusFailed})
	r.Summarize()
	assert.Equal(t, 1, r.Summary.Failed)
	assert.False(t, r.OK())

	r.FinishedAt = time.Time{}
	assert.Zero(t, r.Duration())
}
