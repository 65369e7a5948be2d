package platform

import (
	"strings"
	"testing"
)

func TestSplitMessage(t *testing.T) {
	tests := []struct {
		name       string
		length     int
		wantChunks int
	}{
		{name: "empty", length: 0, wantChunks: 1},
		{name: "short", length: 5, wantChunks: 1},
		{name: "exactly at limit", length: ChunkLimit, wantChunks: 1},
		{name: "one over limit", length: ChunkLimit + 1, wantChunks: 2},
		{name: "long response", length: 4300, wantChunks: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text := strings.Repeat("a", tt.length)
			chunks := SplitMessage(text)

			if len(chunks) != tt.wantChunks {
				t.Fatalf("got %d chunks, want %d", len(chunks), tt.wantChunks)
			}
			for i, chunk := range chunks {
				if n := len([]rune(chunk)); n > ChunkLimit {
					t.Errorf("chunk %d has %d chars, limit is %d", i, n, ChunkLimit)
				}
			}
			if got := strings.Join(chunks, ""); got != text {
				t.Error("concatenated chunks do not reproduce the input")
			}
		})
	}
}

func TestSplitMessageMultibyte(t *testing.T) {
	// Rune-based splitting must not cut a multibyte character in half.
	text := strings.Repeat("あ", ChunkLimit+10)
	chunks := SplitMessage(text)

	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
	if got := strings.Join(chunks, ""); got != text {
		t.Error("concatenated chunks do not reproduce the input")
	}
	for i, chunk := range chunks {
		if !strings.HasPrefix(chunk, "あ") {
			t.Errorf("chunk %d starts mid-rune", i)
		}
	}
}
