package search

import (
	"reflect"
	"testing"
)

func TestFold(t *testing.T) {
	cases := map[string]string{
		"  Sports ":  "sports",
		"CAFÉ": "café",
		"":           "",
	}
	for in, want := range cases {
		if got := Fold(in); got != want {
			t.Fatalf("Fold(%q)=%q want %q", in, got, want)
		}
	}
}

func TestFoldTerms(t *testing.T) {
	got := FoldTerms([]string{"Sports  Nutrition", "sports nutrition", " ", "Vegan", "VEGAN", "keto"})
	want := []string{"sports nutrition", "vegan", "keto"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("FoldTerms=%v want %v", got, want)
	}
	if out := FoldTerms(nil); len(out) != 0 {
		t.Fatalf("nil input should give empty slice, got %v", out)
	}
}
