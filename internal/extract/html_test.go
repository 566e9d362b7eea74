package extract

import (
	"strings"
	"testing"
)

func TestVisibleText(t *testing.T) {
	html := `<html><head><title>Note</title><style>p{}</style></head>
<body><h1>Visit</h1><p>Chest pain for 2 days.</p><script>var x = 1;</script>
<ul><li>No fever</li><li>BP 120/80</li></ul></body></html>`

	text, err := VisibleText(html)
	if err != nil {
		t.Fatalf("VisibleText failed: %v", err)
	}

	lines := strings.Split(text, "\n")
	want := []string{"Visit", "Chest pain for 2 days.", "No fever", "BP 120/80"}
	if len(lines) != len(want) {
		t.Fatalf("expected %d lines, got %d: %q", len(want), len(lines), text)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d: expected %q, got %q", i, want[i], lines[i])
		}
	}
}

func TestLooksLikeHTML(t *testing.T) {
	if !LooksLikeHTML("<!DOCTYPE html><html></html>") {
		t.Error("expected doctype to be HTML")
	}
	if !LooksLikeHTML("<p>Chest pain</p>") {
		t.Error("expected fragment to be HTML")
	}
	if LooksLikeHTML("BP < 120 and HR > 60") {
		t.Error("expected plain text not to be HTML")
	}
}
