package ingest_test

import (
	"strings"
	"testing"

	"briefsmith/internal/ingest"
)

func words(n int, prefix string) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = prefix
	}
	return strings.Join(parts, " ")
}

func TestChunkWords(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		size    int
		overlap int
		want    []int
	}{
		{name: "empty", text: "   ", size: 10, overlap: 2, want: nil},
		{name: "single window", text: words(8, "a"), size: 10, overlap: 2, want: []int{8}},
		{name: "exact fit", text: words(10, "a"), size: 10, overlap: 2, want: []int{10}},
		{name: "overlapping windows", text: words(25, "a"), size: 10, overlap: 2, want: []int{10, 10, 9}},
		{name: "overlap too large ignored", text: words(20, "a"), size: 10, overlap: 10, want: []int{10, 10}},
		{name: "no size keeps everything", text: words(20, "a"), size: 0, overlap: 0, want: []int{20}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			chunks := ingest.ChunkWords(tc.text, tc.size, tc.overlap)
			if len(chunks) != len(tc.want) {
				t.Fatalf("got %d chunks, want %d", len(chunks), len(tc.want))
			}
			for i, chunk := range chunks {
				if got := len(strings.Fields(chunk)); got != tc.want[i] {
					t.Fatalf("chunk %d has %d words, want %d", i, got, tc.want[i])
				}
			}
		})
	}
}

func TestChunkWordsOverlapSharesWords(t *testing.T) {
	parts := make([]string, 15)
	for i := range parts {
		parts[i] = string(rune('a' + i))
	}
	chunks := ingest.ChunkWords(strings.Join(parts, " "), 10, 3)
	if len(chunks) != 2 {
		t.Fatalf("chunks = %q", chunks)
	}
	first := strings.Fields(chunks[0])
	second := strings.Fields(chunks[1])
	if strings.Join(first[7:], " ") != strings.Join(second[:3], " ") {
		t.Fatalf("expected 3 shared words between %q and %q", chunks[0], chunks[1])
	}
}

func TestExtractTextSkipsChrome(t *testing.T) {
	text, err := ingest.ExtractText(strings.NewReader(aboutPage))
	if err != nil {
		t.Fatalf("ExtractText: %v", err)
	}
	lines := strings.Split(text, "\n")
	if lines[0] != "Acme" {
		t.Fatalf("expected title first, got %q", text)
	}
	if !strings.Contains(text, "About Acme\nAcme operates a regional freight network serving retailers.") {
		t.Fatalf("expected block separation, got %q", text)
	}
	if strings.Contains(text, "Home") {
		t.Fatalf("nav text leaked: %q", text)
	}
}
