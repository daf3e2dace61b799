package auth

import (
	"testing"
	"time"
)

func TestTokenValue_Expiry(t *testing.T) {
	tv, err := NewTokenValue("abc", 30*time.Second, testEpoch)
	if err != nil {
		t.Fatalf("NewTokenValue() error = %v", err)
	}
	if !tv.ExpiresAt().After(testEpoch) {
		t.Fatal("expiry must be strictly after creation")
	}

	tests := []struct {
		name      string
		at        time.Time
		expired   bool
		remaining int64
	}{
		{"at creation", testEpoch, false, 30},
		{"partial second rounds up", testEpoch.Add(500 * time.Millisecond), false, 30},
		{"one second left", testEpoch.Add(29 * time.Second), false, 1},
		{"at expiry", testEpoch.Add(30 * time.Second), true, 0},
		{"after expiry", testEpoch.Add(time.Hour), true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tv.IsExpired(tt.at); got != tt.expired {
				t.Errorf("IsExpired() = %v, want %v", got, tt.expired)
			}
			if got := tv.RemainingSeconds(tt.at); got != tt.remaining {
				t.Errorf("RemainingSeconds() = %d, want %d", got, tt.remaining)
			}
		})
	}
}

func TestTokenValue_MatchesAndEqual(t *testing.T) {
	a := RestoreTokenValue("abc", testEpoch)
	b := RestoreTokenValue("abc", testEpoch.In(time.FixedZone("X", 3600)))

	if !a.Matches("abc") || a.Matches("abd") || a.Matches("") {
		t.Error("Matches() compares the raw value exactly")
	}
	if !a.Equal(b) {
		t.Error("Equal() should ignore the location of the expiry")
	}
	if a.Equal(RestoreTokenValue("abc", testEpoch.Add(time.Second))) {
		t.Error("Equal() should compare expiry")
	}
}
