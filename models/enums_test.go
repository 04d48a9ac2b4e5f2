package models

import "testing"

func TestParseProductionRunStatus(t *testing.T) {
	cases := []struct {
		in      string
		want    ProductionRunStatus
		wantErr bool
	}{
		{"Started", RunStatusStarted, false},
		{"Planned", RunStatusStarted, false}, // legacy rows
		{"On Curing", RunStatusOnCuring, false},
		{"Completed", RunStatusCompleted, false},
		{"Cancelled", "", true},
		{"", "", true},
		{"started", "", true},
	}
	for _, tc := range cases {
		got, err := ParseProductionRunStatus(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseProductionRunStatus(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseProductionRunStatus(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseProductionRunStatus(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestProductionRunStatusScan(t *testing.T) {
	var s ProductionRunStatus
	if err := s.Scan([]byte("Planned")); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if s != RunStatusStarted {
		t.Fatalf("Scan normalized to %q, want %q", s, RunStatusStarted)
	}
	if err := s.Scan("bogus"); err == nil {
		t.Fatal("Scan accepted an invalid status")
	}
	if err := s.Scan(42); err == nil {
		t.Fatal("Scan accepted a non-string value")
	}
}

func TestParseLocationType(t *testing.T) {
	for _, valid := range []string{"Casting", "Curing", "Stock", "Septic"} {
		if _, err := ParseLocationType(valid); err != nil {
			t.Errorf("ParseLocationType(%q): %v", valid, err)
		}
	}
	if _, err := ParseLocationType("Warehouse"); err == nil {
		t.Error("ParseLocationType accepted an unknown type")
	}
}

func TestCategorySetsAreDisjoint(t *testing.T) {
	for category := range rawMaterialCategories {
		if IsFinishedGoodCategory(category) {
			t.Errorf("%q is in both category sets", category)
		}
	}
	for category := range finishedGoodCategories {
		if IsRawMaterialCategory(category) {
			t.Errorf("%q is in both category sets", category)
		}
	}
}

func TestItemCategoryHelpers(t *testing.T) {
	raw := InventoryItem{Category: "Cement"}
	if !raw.IsRawMaterial() || raw.IsFinishedGood() {
		t.Error("Cement should be raw material only")
	}
	fg := InventoryItem{Category: "RCC Pipes"}
	if !fg.IsFinishedGood() || fg.IsRawMaterial() {
		t.Error("RCC Pipes should be finished good only")
	}
	other := InventoryItem{Category: "Stationery"}
	if other.IsRawMaterial() || other.IsFinishedGood() {
		t.Error("unknown category should be neither")
	}
}

func TestMoldStatusScanRejectsInvalid(t *testing.T) {
	var m MoldStatus
	if err := m.Scan("Available"); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if err := m.Scan("Broken"); err == nil {
		t.Fatal("Scan accepted an invalid mold status")
	}
}
