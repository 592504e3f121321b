package export

import "testing"

func TestRunKey_String(t *testing.T) {
	tests := []struct {
		name     string
		key      RunKey
		expected string
	}{
		{
			name:     "complete run",
			key:      RunKey{Prefix: "autos", RunID: "r1"},
			expected: "harvest:autos:r1",
		},
		{
			name:     "partial run",
			key:      RunKey{Prefix: "autos", RunID: "r1", Partial: true},
			expected: "harvest:autos:r1:partial",
		},
		{
			name:     "no prefix",
			key:      RunKey{RunID: "r1"},
			expected: "harvest:r1",
		},
		{
			name:     "prefix colons trimmed",
			key:      RunKey{Prefix: ":autos:", RunID: "r1"},
			expected: "harvest:autos:r1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.key.String(); got != tt.expected {
				t.Errorf("String() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestRunKey_Suffixes(t *testing.T) {
	key := RunKey{Prefix: "autos", RunID: "r1", Partial: true}

	if got := key.Records(); got != "harvest:autos:r1:partial:records" {
		t.Errorf("Records() = %q", got)
	}
	if got := key.Meta(); got != "harvest:autos:r1:partial:meta" {
		t.Errorf("Meta() = %q", got)
	}
}
