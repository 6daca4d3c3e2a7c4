package pipeline

import "testing"

func TestStageNext(t *testing.T) {
	tests := []struct {
		name     string
		stage    Stage
		wantNext Stage
		wantOK   bool
	}{
		{name: "ideation advances to planning draft", stage: StageIdeation, wantNext: StagePlanningDraft, wantOK: true},
		{name: "planning draft advances to review", stage: StagePlanningDraft, wantNext: StagePlanningReview, wantOK: true},
		{name: "review advances to dev", stage: StagePlanningReview, wantNext: StageDev, wantOK: true},
		{name: "dev advances to qa", stage: StageDev, wantNext: StageQA, wantOK: true},
		{name: "qa advances to done", stage: StageQA, wantNext: StageDone, wantOK: true},
		{name: "done has no successor", stage: StageDone, wantOK: false},
		{name: "rejected has no successor", stage: StageRejected, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, ok := tt.stage.Next()
			if ok != tt.wantOK {
				t.Fatalf("Next() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && next != tt.wantNext {
				t.Errorf("Next() = %q, want %q", next, tt.wantNext)
			}
		})
	}
}

func TestParseStage(t *testing.T) {
	for _, s := range Stages() {
		got, err := ParseStage(string(s))
		if err != nil {
			t.Errorf("ParseStage(%q) returned error: %v", s, err)
		}
		if got != s {
			t.Errorf("ParseStage(%q) = %q", s, got)
		}
	}

	if _, err := ParseStage("SHIPPING"); err == nil {
		t.Error("ParseStage accepted an unknown stage")
	}
}

func TestStageTerminal(t *testing.T) {
	if !StageDone.Terminal() {
		t.Error("DONE should be terminal")
	}
	if !StageRejected.Terminal() {
		t.Error("REJECTED should be terminal")
	}
	if StageDev.Terminal() {
		t.Error("DEV should not be terminal")
	}
}
