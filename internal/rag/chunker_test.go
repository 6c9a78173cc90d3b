package rag

import (
	"strings"
	"testing"
)

func TestChunkTextShortInputWhole(t *testing.T) {
	chunks := ChunkText("short text", 100, 15)
	if len(chunks) != 1 || chunks[0] != "short text" {
		t.Fatalf("chunks = %v", chunks)
	}
}

func TestChunkTextEmpty(t *testing.T) {
	if chunks := ChunkText("   ", 100, 15); chunks != nil {
		t.Fatalf("expected nil, got %v", chunks)
	}
}

func TestChunkTextOverlap(t *testing.T) {
	text := strings.Repeat("abcdefghij", 100) // 1000 chars
	size, overlap := 300, 45
	chunks := ChunkText(text, size, overlap)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	step := size - overlap
	for i := 0; i < len(chunks)-1; i++ {
		if len(chunks[i]) != size {
			t.Fatalf("chunk %d has %d chars, want %d", i, len(chunks[i]), size)
		}
		// Consecutive windows share the overlap region.
		if chunks[i][step:] != chunks[i+1][:overlap] {
			t.Fatalf("chunk %d does not overlap chunk %d", i, i+1)
		}
	}
	last := chunks[len(chunks)-1]
	if len(last) > size {
		t.Fatalf("final chunk has %d chars, exceeds window size %d", len(last), size)
	}
}

func TestChunkTextCoversWholeInput(t *testing.T) {
	text := strings.Repeat("x", 2_500)
	chunks := ChunkText(text, 1000, 150)
	total := 0
	for _, c := range chunks {
		total += len(c)
	}
	// Overlap means total >= len(text); nothing may be lost.
	if total < len(text) {
		t.Fatalf("chunks cover %d chars of %d", total, len(text))
	}
	if !strings.HasSuffix(text, chunks[len(chunks)-1]) {
		t.Fatal("final chunk must end where the text ends")
	}
}
