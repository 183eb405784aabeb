package domain

import "testing"

func TestPhaseLabel(t *testing.T) {
	declined := DeclinedMessage
	failed := "Python script failed:\nboom"
	code := "import pandas as pd"

	testCases := []struct {
		name string
		row  Transformation
		want string
	}{
		{
			name: "pending without code",
			row:  Transformation{Status: TransformationStatusPending},
			want: "Generating transformation code",
		},
		{
			name: "pending with code",
			row:  Transformation{Status: TransformationStatusPending, CodeSnippet: &code},
			want: "Awaiting approval",
		},
		{
			name: "running",
			row:  Transformation{Status: TransformationStatusRunning},
			want: "Executing transformation",
		},
		{
			name: "completed",
			row:  Transformation{Status: TransformationStatusCompleted},
			want: "Completed",
		},
		{
			name: "declined",
			row:  Transformation{Status: TransformationStatusError, ErrorMessage: &declined},
			want: "Declined",
		},
		{
			name: "failed",
			row:  Transformation{Status: TransformationStatusError, ErrorMessage: &failed},
			want: "Failed",
		},
		{
			name: "stale",
			row:  Transformation{Status: TransformationStatusStale},
			want: "Stale",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.row.PhaseLabel(); got != tc.want {
				t.Errorf("PhaseLabel mismatch: got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestIsTerminal(t *testing.T) {
	terminal := []TransformationStatus{
		TransformationStatusCompleted,
		TransformationStatusError,
		TransformationStatusStale,
	}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}

	for _, s := range []TransformationStatus{TransformationStatusPending, TransformationStatusRunning} {
		if s.IsTerminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}
