package paragraph

import (
	"strings"
	"testing"
)

func TestMerge(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "course example",
			input: "Introduction\nCe cours traite\ndes systèmes.\nChapitre 1",
			want:  "Introduction\n\nCe cours traite des systèmes.\n\nChapitre 1",
		},
		{
			name:  "empty",
			input: "",
			want:  "",
		},
		{
			name:  "only blank lines",
			input: "\n   \n\t\n",
			want:  "",
		},
		{
			name:  "blank lines carry no break",
			input: "La méthode\n\n\nest simple.",
			want:  "La méthode est simple.",
		},
		{
			name:  "lines are trimmed",
			input: "  Titre  \n   suite du titre ",
			want:  "Titre suite du titre",
		},
		{
			name:  "accented lowercase continues",
			input: "Le rôle\nélémentaire\nà retenir\nçà et là",
			want:  "Le rôle élémentaire à retenir çà et là",
		},
		{
			name:  "digit and punctuation start new paragraphs",
			input: "Points clés\n1. premier\n- second\n(note)",
			want:  "Points clés\n\n1. premier\n\n- second\n\n(note)",
		},
		{
			name:  "lowercase first line starts a paragraph",
			input: "suite d'une page précédente\nFin",
			want:  "suite d'une page précédente\n\nFin",
		},
		{
			name:  "accented uppercase starts a paragraph",
			input: "Premier\nÉtape deux",
			want:  "Premier\n\nÉtape deux",
		},
		{
			name:  "windows line endings",
			input: "Bonjour\r\nle monde\r\n",
			want:  "Bonjour le monde",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Merge(tt.input); got != tt.want {
				t.Errorf("Merge(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestMergeIdempotent(t *testing.T) {
	inputs := []string{
		"Introduction\nCe cours traite\ndes systèmes.\nChapitre 1",
		"A\nB\nC",
		"Titre\n\n\nDeuxième partie\nTroisième",
		"Une ligne seule",
	}
	for _, input := range inputs {
		once := Merge(input)
		again := Merge(strings.ReplaceAll(once, Separator, "\n"))
		if once != again {
			t.Errorf("not idempotent for %q: %q then %q", input, once, again)
		}
	}
}

func TestIsContinuation(t *testing.T) {
	tests := []struct {
		line string
		want bool
	}{
		{"des systèmes", true},
		{"é", true},
		{"è", true},
		{"à", true},
		{"ç", true},
		{"â", true},
		{"ê", true},
		{"î", true},
		{"ô", true},
		{"û", true},
		{"ë", true},
		{"ï", true},
		{"ü", true},
		{"Chapitre", false},
		{"École", false},
		{"1er", false},
		{"« citation »", false},
		{"e\u0301tude", true},
		{"c\u0327a", true},
		{"ñandú", false},
		{"n\u0303", false},
		{"ão", false},
		{"ąkolwiek", false},
		{"ø", false},
		{"ß", false},
		{"λ", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			if got := IsContinuation(tt.line); got != tt.want {
				t.Errorf("IsContinuation(%q) = %v, want %v", tt.line, got, tt.want)
			}
		})
	}
}
