package buffile

import (
	"bytes"
	"testing"
)

// TestFileWriteSeekOverwrite covers the round-trip law from §8: writes
// followed by seek(0, SET) and further writes concatenate in write order,
// with overlapping writes overwriting in place.
func TestFileWriteSeekOverwrite(t *testing.T) {
	f := New("staging", 4, 16)

	if _, err := f.Write([]byte("HELLO")); err != nil {
		t.Fatalf("Write HELLO: %v", err)
	}
	if _, err := f.Write([]byte("WORLD!")); err != nil {
		t.Fatalf("Write WORLD!: %v", err)
	}
	// buffer is now "HELLOWORLD!" (11 bytes) across three 4-byte chunks.
	if f.Size() != 11 {
		t.Fatalf("Size = %d, want 11", f.Size())
	}

	if _, err := f.Seek(0, SeekSet); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	if _, err := f.Write([]byte("hel")); err != nil {
		t.Fatalf("Write hel: %v", err)
	}

	var buf bytes.Buffer
	if err := f.Save(&buf); err != nil {
		t.Fatalf("Save: %v", err)
	}
	want := "helLOWORLD!"
	if buf.String() != want {
		t.Fatalf("Save = %q, want %q", buf.String(), want)
	}
}

// TestFileWritePastMaxSizeInvalidates covers the invalid-state latch: a
// write that would grow the chunk list past maxSize fails, and every
// subsequent write and seek also fails.
func TestFileWritePastMaxSizeInvalidates(t *testing.T) {
	f := New("staging", 4, 8) // 2 chunks max
	if _, err := f.Write([]byte("12345678")); err != nil {
		t.Fatalf("Write within cap: %v", err)
	}
	if _, err := f.Write([]byte("9")); err == nil {
		t.Fatalf("expected write past maxSize to fail")
	}
	if _, err := f.Write([]byte("x")); err == nil {
		t.Fatalf("expected subsequent write to fail once invalid")
	}
	if _, err := f.Seek(0, SeekSet); err == nil {
		t.Fatalf("expected seek to fail once invalid")
	}
}

// TestFileSeekRejectsPastLastWrittenOrNegative covers the seek boundary
// rule from §4.10: seeking past LastWrittenPos or to a negative offset
// fails, and write position is left unchanged.
func TestFileSeekRejectsPastLastWrittenOrNegative(t *testing.T) {
	f := New("staging", 4, 16)
	if _, err := f.Write([]byte("ab")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := f.Seek(3, SeekSet); err == nil {
		t.Fatalf("expected seek past lastWrittenPos to fail")
	}
	if _, err := f.Seek(-1, SeekSet); err == nil {
		t.Fatalf("expected seek to negative offset to fail")
	}
	if _, err := f.Seek(1, SeekSet); err != nil {
		t.Fatalf("Seek(1): %v", err)
	}
	if f.writePos != 1 {
		t.Fatalf("writePos = %d, want 1", f.writePos)
	}
}

// TestFileSeekCurAndEnd covers SeekCur/SeekEnd arithmetic relative to
// writePos/lastWrittenPos respectively.
func TestFileSeekCurAndEnd(t *testing.T) {
	f := New("staging", 4, 16)
	if _, err := f.Write([]byte("abcdef")); err != nil { // lastWrittenPos=6
		t.Fatalf("Write: %v", err)
	}
	if _, err := f.Seek(-2, SeekEnd); err != nil {
		t.Fatalf("Seek SeekEnd: %v", err)
	}
	if f.writePos != 4 {
		t.Fatalf("writePos after SeekEnd(-2) = %d, want 4", f.writePos)
	}
	if _, err := f.Seek(1, SeekCur); err != nil {
		t.Fatalf("Seek SeekCur: %v", err)
	}
	if f.writePos != 5 {
		t.Fatalf("writePos after SeekCur(1) = %d, want 5", f.writePos)
	}
}

// TestFileSaveTruncatesLastChunk covers Save's handling of a
// LastWrittenPos that does not fill the final chunk.
func TestFileSaveTruncatesLastChunk(t *testing.T) {
	f := New("staging", 4, 16)
	if _, err := f.Write([]byte("123456789")); err != nil { // 3 chunks: 1234,5678,9
		t.Fatalf("Write: %v", err)
	}
	var buf bytes.Buffer
	if err := f.Save(&buf); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if buf.String() != "123456789" {
		t.Fatalf("Save = %q, want %q", buf.String(), "123456789")
	}
}

// TestFileOpaque covers the opaque pointer passthrough.
func TestFileOpaque(t *testing.T) {
	f := New("staging", 4, 16)
	if f.Opaque() != nil {
		t.Fatalf("Opaque before set = %v, want nil", f.Opaque())
	}
	type token struct{ id int }
	tok := &token{id: 7}
	f.SetOpaque(tok)
	if f.Opaque() != any(tok) {
		t.Fatalf("Opaque after set = %v, want %v", f.Opaque(), tok)
	}
}
