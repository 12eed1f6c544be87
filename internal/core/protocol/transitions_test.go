package protocol

import (
	"testing"
	"time"
)

var fixedTime = time.Date(2026, 4, 2, 12, 0, 0, 0, time.UTC)

func TestActivate(t *testing.T) {
	tests := []struct {
		name    string
		current Status
		actor   string
		wantErr bool
	}{
		{"from inactive", StatusInactive, "operator", false},
		{"already active", StatusActive, "operator", true},
		{"missing actor", StatusInactive, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, err := Activate(tt.current, tt.actor, "travelling", fixedTime)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Activate succeeded, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Activate failed: %v", err)
			}
			if tr.Action != ActionActivated || tr.NewStatus != StatusActive {
				t.Errorf("Activate() = %+v, want ACTIVATED -> ACTIVE", tr)
			}
			if tr.Reason != "travelling" || tr.Actor != "operator" || !tr.At.Equal(fixedTime) {
				t.Errorf("Activate() transition fields = %+v", tr)
			}
		})
	}
}

func TestDeactivate(t *testing.T) {
	tests := []struct {
		name    string
		current Status
		actor   string
		wantErr bool
	}{
		{"from active", StatusActive, "operator", false},
		{"not active", StatusInactive, "operator", true},
		{"missing actor", StatusActive, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, err := Deactivate(tt.current, tt.actor, fixedTime)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Deactivate succeeded, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Deactivate failed: %v", err)
			}
			if tr.Action != ActionDeactivated || tr.NewStatus != StatusInactive {
				t.Errorf("Deactivate() = %+v, want DEACTIVATED -> INACTIVE", tr)
			}
		})
	}
}

func TestOneTimePassLeavesStatusUnchanged(t *testing.T) {
	tr, err := OneTimePass(StatusActive, "operator", fixedTime)
	if err != nil {
		t.Fatalf("OneTimePass failed: %v", err)
	}
	if tr.Action != ActionOneTimePass {
		t.Errorf("Action = %s, want ONE_TIME_PASS", tr.Action)
	}
	if tr.PreviousStatus != StatusActive || tr.NewStatus != StatusActive {
		t.Errorf("OneTimePass() = %s -> %s, want ACTIVE -> ACTIVE", tr.PreviousStatus, tr.NewStatus)
	}

	if _, err := OneTimePass(StatusInactive, "operator", fixedTime); err == nil {
		t.Error("OneTimePass on inactive protocol succeeded, want error")
	}
	if _, err := OneTimePass(StatusActive, "", fixedTime); err == nil {
		t.Error("OneTimePass without actor succeeded, want error")
	}
}

func TestExpiresAtIsSevenDays(t *testing.T) {
	got := ExpiresAt(fixedTime)
	want := fixedTime.Add(7 * 24 * time.Hour)
	if !got.Equal(want) {
		t.Errorf("ExpiresAt() = %v, want %v", got, want)
	}
}
