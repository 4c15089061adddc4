package security

import "testing"

func TestRiskScore(t *testing.T) {
	tests := []struct {
		name     string
		outcome  Outcome
		severity Severity
		action   string
		metadata map[string]any
		want     int
	}{
		{
			name:     "routine successful read",
			outcome:  OutcomeSuccess,
			severity: SeverityLow,
			action:   "read itinerary",
			want:     10,
		},
		{
			name:     "successful low-severity login",
			outcome:  OutcomeSuccess,
			severity: SeverityLow,
			action:   "login",
			want:     25,
		},
		{
			name:     "failed medium login",
			outcome:  OutcomeFailure,
			severity: SeverityMedium,
			action:   "login",
			want:     60,
		},
		{
			name:     "denied admin delete",
			outcome:  OutcomeDenied,
			severity: SeverityHigh,
			action:   "admin_delete_user",
			want:     100, // 30+50+30+25 = 135, clamped
		},
		{
			name:     "action substrings stack",
			outcome:  OutcomeSuccess,
			severity: SeverityLow,
			action:   "admin export",
			want:     60, // 10+30+20
		},
		{
			name:     "everything at once clamps to the cap",
			outcome:  OutcomeDenied,
			severity: SeverityCritical,
			action:   "admin login delete export",
			metadata: map[string]any{
				FlagSuspiciousActivity: true,
				FlagMultipleFailures:   true,
				FlagUnusualLocation:    true,
			},
			want: MaxRiskScore,
		},
		{
			name:     "flags alone raise a quiet event",
			outcome:  OutcomeSuccess,
			severity: SeverityLow,
			action:   "read profile",
			metadata: map[string]any{FlagSuspiciousActivity: true},
			want:     50,
		},
		{
			name:     "string true counts as set",
			outcome:  OutcomeSuccess,
			severity: SeverityLow,
			action:   "read profile",
			metadata: map[string]any{FlagUnusualLocation: "true"},
			want:     35,
		},
		{
			name:     "false flag is ignored",
			outcome:  OutcomeSuccess,
			severity: SeverityLow,
			action:   "read profile",
			metadata: map[string]any{FlagSuspiciousActivity: false},
			want:     10,
		},
		{
			name:     "non-boolean flag value is ignored",
			outcome:  OutcomeSuccess,
			severity: SeverityLow,
			action:   "read profile",
			metadata: map[string]any{FlagSuspiciousActivity: 1},
			want:     10,
		},
		{
			name:     "unknown severity contributes nothing",
			outcome:  OutcomeSuccess,
			severity: Severity("bogus"),
			action:   "read",
			want:     0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RiskScore(tt.outcome, tt.severity, tt.action, tt.metadata)
			if got != tt.want {
				t.Errorf("RiskScore() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestRiskScoreDeterministic(t *testing.T) {
	metadata := map[string]any{FlagMultipleFailures: true}
	first := RiskScore(OutcomeFailure, SeverityHigh, "login", metadata)
	for i := 0; i < 10; i++ {
		if got := RiskScore(OutcomeFailure, SeverityHigh, "login", metadata); got != first {
			t.Fatalf("RiskScore() not deterministic: %d != %d", got, first)
		}
	}
}

func TestParseOutcome(t *testing.T) {
	tests := []struct {
		in   string
		want Outcome
	}{
		{"failure", OutcomeFailure},
		{"FAILED", OutcomeFailure},
		{"denied", OutcomeDenied},
		{"deny", OutcomeDenied},
		{"success", OutcomeSuccess},
		{"", OutcomeSuccess},
		{"garbage", OutcomeSuccess},
	}
	for _, tt := range tests {
		if got := ParseOutcome(tt.in); got != tt.want {
			t.Errorf("ParseOutcome(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSeverityAtLeast(t *testing.T) {
	if !SeverityCritical.AtLeast(SeverityHigh) {
		t.Error("critical should be at least high")
	}
	if !SeverityMedium.AtLeast(SeverityMedium) {
		t.Error("a severity should be at least itself")
	}
	if SeverityLow.AtLeast(SeverityHigh) {
		t.Error("low should not be at least high")
	}
}
