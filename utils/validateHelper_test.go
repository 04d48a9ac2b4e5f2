package utils

import "testing"

type moldPayload struct {
	MoldNumber  string `json:"mold_number" binding:"required"`
	Description string `json:"description"`
}

func TestValidateStruct_EnforcesBindingTags(t *testing.T) {
	err := ValidateStruct(&moldPayload{})
	if err == nil {
		t.Fatal("expected error for missing mold_number")
	}
	if got := err.Error(); got != "invalid field moldnumber (required)" {
		t.Fatalf("unexpected message: %q", got)
	}

	if err := ValidateStruct(&moldPayload{MoldNumber: "M1"}); err != nil {
		t.Fatalf("valid payload rejected: %v", err)
	}
}
