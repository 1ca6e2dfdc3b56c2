package domain

import (
	"errors"
	"testing"
)

func TestItemStatus_CanTransition(t *testing.T) {
	tests := []struct {
		from, to ItemStatus
		want     bool
	}{
		{StatusPending, StatusRunning, true},
		{StatusPending, StatusSkipped, true},
		{StatusPending, StatusCompleted, false},
		{StatusRunning, StatusCompleted, true},
		{StatusRunning, StatusFailed, true},
		{StatusRunning, StatusSkipped, true},
		{StatusRunning, StatusPending, false},
		{StatusCompleted, StatusFailed, false},
		{StatusFailed, StatusRunning, false},
		{StatusSkipped, StatusRunning, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if got := tt.from.CanTransition(tt.to); got != tt.want {
				t.Errorf("CanTransition = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestChecklistItem_Transition(t *testing.T) {
	item := NewItem("SET-001", Tier{Index: 1, Name: "Installation"}, "install it")

	if err := item.Transition(StatusRunning); err != nil {
		t.Fatal(err)
	}
	if err := item.Transition(StatusPending); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Transition back to pending: err = %v, want ErrInvalidTransition", err)
	}
	if err := item.Finish(StatusCompleted, ItemResult{Output: "ok"}); err != nil {
		t.Fatal(err)
	}
	if err := item.Finish(StatusFailed, ItemResult{}); !errors.Is(err, ErrResultAlreadySet) {
		t.Errorf("second Finish: err = %v, want ErrResultAlreadySet", err)
	}
	if item.Status != StatusCompleted {
		t.Errorf("Status = %s, want completed", item.Status)
	}
}

func TestChecklistItem_FinishRequiresTerminal(t *testing.T) {
	item := NewItem("SET-001", Tier{Index: 1}, "x")
	if err := item.Finish(StatusRunning, ItemResult{}); err == nil {
		t.Error("Finish with non-terminal status should error")
	}
	if item.Result != nil {
		t.Error("Result should not be set after failed Finish")
	}
}

func TestTier_Slug(t *testing.T) {
	tests := []struct {
		tier Tier
		want string
	}{
		{Tier{Index: 1, Name: "Installation & Setup Verification"}, "tier_1_installation_setup_verification"},
		{Tier{Index: 2, Name: "Document Lifecycle Operations"}, "tier_2_document_lifecycle_operations"},
		{Tier{Index: 3, Name: ""}, "tier_3"},
		{Tier{Index: 4, Name: "  --  "}, "tier_4"},
	}
	for _, tt := range tests {
		if got := tt.tier.Slug(); got != tt.want {
			t.Errorf("Slug(%q) = %q, want %q", tt.tier.Name, got, tt.want)
		}
	}
}

func TestToStatus(t *testing.T) {
	tests := []struct {
		input string
		want  ItemStatus
	}{
		{"", StatusPending},
		{"x", StatusCompleted},
		{"Passed", StatusCompleted},
		{"!", StatusFailed},
		{"failed", StatusFailed},
		{"skip", StatusSkipped},
		{"whatever", StatusPending},
	}
	for _, tt := range tests {
		if got := ToStatus(tt.input); got != tt.want {
			t.Errorf("ToStatus(%q) = %s, want %s", tt.input, got, tt.want)
		}
	}
}

func TestRunReport_ExitCode(t *testing.T) {
	if (RunReport{Processed: 3, Completed: 3}).ExitCode() != 0 {
		t.Error("ExitCode should be 0 when nothing failed")
	}
	if (RunReport{Processed: 3, Completed: 2, Failed: 1}).ExitCode() != 1 {
		t.Error("ExitCode should be 1 when an item failed")
	}
}
