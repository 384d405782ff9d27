package logger

import (
	"context"
	"testing"
)

func TestWithLogFieldsMerges(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ctx = WithLogFields(ctx, LogFields{
		SessionID: Ptr("sess-1"),
		Component: "engine",
	})
	ctx = WithLogFields(ctx, LogFields{
		JobID: Ptr(int64(42)),
		Stage: Ptr("extraction"),
	})

	fields := GetLogFields(ctx)
	if fields.SessionID == nil || *fields.SessionID != "sess-1" {
		t.Errorf("SessionID = %v, want sess-1", fields.SessionID)
	}
	if fields.JobID == nil || *fields.JobID != 42 {
		t.Errorf("JobID = %v, want 42", fields.JobID)
	}
	if fields.Stage == nil || *fields.Stage != "extraction" {
		t.Errorf("Stage = %v", fields.Stage)
	}
	if fields.Component != "engine" {
		t.Errorf("Component = %q, want engine", fields.Component)
	}
}

func TestWithLogFieldsNewerValuesWin(t *testing.T) {
	t.Parallel()

	ctx := WithLogFields(context.Background(), LogFields{
		Stage:     Ptr("expansion"),
		Component: "engine.coordinator",
	})
	ctx = WithLogFields(ctx, LogFields{
		Stage: Ptr("evidence"),
	})

	fields := GetLogFields(ctx)
	if *fields.Stage != "evidence" {
		t.Errorf("Stage = %s, want evidence", *fields.Stage)
	}
	if fields.Component != "engine.coordinator" {
		t.Errorf("Component = %q, want unchanged", fields.Component)
	}
}

func TestGetLogFieldsEmpty(t *testing.T) {
	t.Parallel()

	fields := GetLogFields(context.Background())
	if fields.SessionID != nil || fields.Component != "" {
		t.Errorf("fields = %+v, want zero value", fields)
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in     string
		maxLen int
		want   string
	}{
		{"short", 10, "short"},
		{"exactly ten", 11, "exactly ten"},
		{"this is definitely too long", 7, "this is..."},
		{"", 5, ""},
	}
	for _, tt := range tests {
		if got := Truncate(tt.in, tt.maxLen); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.maxLen, got, tt.want)
		}
	}
}
