package audio

import (
	"testing"
	"time"
)

func TestOutBuffer_AppendAndTake(t *testing.T) {
	b := NewOutBuffer(3840, 100*time.Millisecond)

	b.Append([]byte{1, 2, 3})
	b.Append([]byte{4, 5})

	if b.Len() != 5 {
		t.Errorf("Expected Len 5, got %d", b.Len())
	}

	got := b.Take()
	if len(got) != 5 || got[0] != 1 || got[4] != 5 {
		t.Errorf("Take returned wrong data: %v", got)
	}
	if b.Len() != 0 {
		t.Errorf("Expected empty buffer after Take, got %d bytes", b.Len())
	}
	if b.Take() != nil {
		t.Error("Expected nil from Take on empty buffer")
	}
}

func TestOutBuffer_ShouldFlushBySize(t *testing.T) {
	b := NewOutBuffer(4, time.Hour)

	b.Append([]byte{1, 2, 3})
	if b.ShouldFlush() {
		t.Error("Should not flush below size threshold")
	}

	b.Append([]byte{4})
	if !b.ShouldFlush() {
		t.Error("Should flush at size threshold")
	}
}

func TestOutBuffer_ShouldFlushByAge(t *testing.T) {
	b := NewOutBuffer(1 << 20, 10*time.Millisecond)

	if b.ShouldFlush() {
		t.Error("Empty buffer should never flush")
	}

	b.Append([]byte{1})
	time.Sleep(20 * time.Millisecond)
	if !b.ShouldFlush() {
		t.Error("Non-empty buffer past the interval should flush")
	}
}

func TestOutBuffer_Clear(t *testing.T) {
	b := NewOutBuffer(4, time.Hour)
	b.Append([]byte{1, 2, 3, 4, 5})

	b.Clear()
	if b.Len() != 0 {
		t.Errorf("Expected empty buffer after Clear, got %d bytes", b.Len())
	}
	if b.ShouldFlush() {
		t.Error("Cleared buffer should not flush")
	}
}

func TestPadToMin(t *testing.T) {
	chunk := []byte{1, 2, 3}

	padded := PadToMin(chunk, 8)
	if len(padded) != 8 {
		t.Fatalf("Expected length 8, got %d", len(padded))
	}
	if padded[0] != 1 || padded[2] != 3 {
		t.Error("Padding must preserve original bytes")
	}
	for i := 3; i < 8; i++ {
		if padded[i] != 0 {
			t.Errorf("Expected zero padding at %d, got %d", i, padded[i])
		}
	}

	same := PadToMin(chunk, 2)
	if len(same) != 3 {
		t.Error("Chunk at or above min must be returned unchanged")
	}
}

func TestAlignChunk(t *testing.T) {
	tests := []struct {
		inLen   int
		wantLen int
	}{
		{0, 3840},
		{1280, 3840},
		{3840, 3840},
		{3841, 4160},
		{4000, 4160},
		{7680, 7680},
	}

	for _, tt := range tests {
		got := AlignChunk(make([]byte, tt.inLen), 320, 3840)
		if len(got) != tt.wantLen {
			t.Errorf("AlignChunk(len=%d) = len %d, want %d", tt.inLen, len(got), tt.wantLen)
		}
		if len(got)%320 != 0 || len(got) < 3840 {
			t.Errorf("AlignChunk(len=%d): %d violates granularity or minimum", tt.inLen, len(got))
		}
	}
}
