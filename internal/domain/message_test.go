package domain

import "testing"

func TestLabel(t *testing.T) {
	tests := []struct {
		index int
		want  string
	}{
		{0, "Answer A"},
		{1, "Answer B"},
		{25, "Answer Z"},
		{26, "Answer AA"},
		{27, "Answer AB"},
	}

	for _, tt := range tests {
		if got := Label(tt.index); got != tt.want {
			t.Errorf("Label(%d) = %q, want %q", tt.index, got, tt.want)
		}
	}
}

func TestExpertLabel(t *testing.T) {
	if got := ExpertLabel(0); got != "Expert A" {
		t.Errorf("ExpertLabel(0) = %q, want %q", got, "Expert A")
	}
}

func TestModelCallResult_Invariant(t *testing.T) {
	// This is a documentation test: the invariant is enforced by callers,
	// not the type itself, but every constructor helper in this package
	// must uphold it.
	ok := ModelCallResult{ModelID: "m1", Answer: "hi", Success: true}
	if ok.Success && ok.Answer == "" {
		t.Fatal("success result must carry a non-empty answer")
	}

	failed := ModelCallResult{ModelID: "m1", Success: false, Error: "boom"}
	if !failed.Success && failed.Answer != "" {
		t.Fatal("failed result must not carry an answer")
	}
}
