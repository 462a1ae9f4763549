package textutil

import (
	"math"
	"testing"
)

func TestCosineSimilarityEdgeCases(t *testing.T) {
	tests := []struct {
		name string
		a    *Fingerprint
		b    *Fingerprint
		want float64
	}{
		{"both nil", nil, nil, 0},
		{"a nil", nil, NewFingerprint("budget review"), 0},
		{"zero norm", &Fingerprint{tokens: map[string]float64{}}, NewFingerprint("budget review"), 0},
		{"disjoint", NewFingerprint("budget review"), NewFingerprint("hiring pipeline"), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CosineSimilarity(tt.a, tt.b); got != tt.want {
				t.Errorf("CosineSimilarity() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCosineSimilarityRanksRelatedText(t *testing.T) {
	summary := NewFingerprint("We reviewed the mobile app release checklist and the app store screenshots.")
	mobile := NewFingerprint("mobile app release store")
	finance := NewFingerprint("quarterly budget invoices payroll")

	related := CosineSimilarity(summary, mobile)
	unrelated := CosineSimilarity(summary, finance)
	if related <= unrelated {
		t.Fatalf("expected related text to score higher: %v <= %v", related, unrelated)
	}
	if math.Abs(CosineSimilarity(mobile, summary)-related) > 1e-12 {
		t.Fatal("CosineSimilarity should be symmetric")
	}
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"Weekly Sync", []string{"weekly", "sync"}},
		{"a to the Q3 plan", []string{"the", "plan"}},
		{"Réunion d'équipe", []string{"réunion", "équipe"}},
		{"", []string{}},
	}
	for _, tt := range tests {
		got := Tokenize(tt.input)
		if len(got) != len(tt.want) {
			t.Fatalf("Tokenize(%q) = %v, want %v", tt.input, got, tt.want)
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("Tokenize(%q)[%d] = %q, want %q", tt.input, i, got[i], tt.want[i])
			}
		}
	}
	if NewFingerprint("a b c") != nil {
		t.Error("expected nil fingerprint for only short tokens")
	}
	if got := NewFingerprint("sync sync notes").TokenCount(); got != 2 {
		t.Errorf("TokenCount() = %d, want 2", got)
	}
}

func TestSanitizeFileName(t *testing.T) {
	tests := map[string]string{
		"Team Standup":             "Team Standup",
		`Q1: Plan <draft> "v2"`:    "Q1_ Plan _draft_ _v2_",
		"a/b\\c|d?e*f":             "a_b_c_d_e_f",
		"Retro...  ":               "Retro",
		"  leading":                "leading",
		"tab\tand\x00null":         "tabandnull",
		"Board meeting. Minutes .": "Board meeting. Minutes",
	}
	for input, want := range tests {
		if got := SanitizeFileName(input); got != want {
			t.Errorf("SanitizeFileName(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestContainsKeyword(t *testing.T) {
	tests := []struct {
		text    string
		keyword string
		want    bool
	}{
		{"Mobile App sync", "mobile app", true},
		{"Weekly mobile-app review", "Mobile App", true},
		{"Appendix review", "app", false},
		{"Budget", "", false},
		{"Apollo launch", "apollo", true},
	}
	for _, tt := range tests {
		if got := ContainsKeyword(tt.text, tt.keyword); got != tt.want {
			t.Errorf("ContainsKeyword(%q, %q) = %v, want %v", tt.text, tt.keyword, got, tt.want)
		}
	}
	keywords := SplitKeywords(" apollo, moon ,, launch ")
	if len(keywords) != 3 || keywords[1] != "moon" {
		t.Fatalf("SplitKeywords = %v", keywords)
	}
}
