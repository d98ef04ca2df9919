package models

import "testing"

func TestMemoryMode(t *testing.T) {
	tests := []struct {
		mode   MemoryMode
		reads  bool
		writes bool
		caches bool
	}{
		{ModeBaseline, false, false, false},
		{ModeRead, true, false, false},
		{ModeReadWrite, true, true, false},
		{ModeReadWriteCache, true, true, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			if got := tt.mode.ReadsMemory(); got != tt.reads {
				t.Errorf("ReadsMemory = %v, want %v", got, tt.reads)
			}
			if got := tt.mode.WritesMemory(); got != tt.writes {
				t.Errorf("WritesMemory = %v, want %v", got, tt.writes)
			}
			if got := tt.mode.CachesTools(); got != tt.caches {
				t.Errorf("CachesTools = %v, want %v", got, tt.caches)
			}
		})
	}
}

func TestQuestionLevelAcc(t *testing.T) {
	tests := []struct {
		name   string
		scores Scores
		want   bool
	}{
		{"all above bar", Scores{Correctness: 0.9, Completeness: 0.85, Relevance: 1}, true},
		{"exactly at bar fails", Scores{Correctness: 0.8, Completeness: 0.9, Relevance: 0.9}, false},
		{"one low score fails", Scores{Correctness: 1, Completeness: 1, Relevance: 0.4}, false},
		{"zeros", Scores{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.scores.QuestionLevelAcc(); got != tt.want {
				t.Errorf("QuestionLevelAcc = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSessionStateClone(t *testing.T) {
	orig := SessionState{SelectedProductIDs: []string{"P001", "P002"}}
	clone := orig.Clone()
	clone.SelectedProductIDs[0] = "changed"
	if orig.SelectedProductIDs[0] != "P001" {
		t.Error("Clone shares the underlying slice")
	}

	empty := SessionState{}.Clone()
	if empty.SelectedProductIDs != nil {
		t.Errorf("empty clone = %v", empty.SelectedProductIDs)
	}
}

func TestUserScope(t *testing.T) {
	if got := UserScope("demo"); got != "user:demo" {
		t.Errorf("UserScope = %q", got)
	}
}
