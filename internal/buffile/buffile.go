// Package buffile implements the chunked in-memory write buffer used to
// stage recording output before it is moved to its final destination
// (§4.10), grounded on original_source's buffered_file.cpp: append-and-seek
// over a growable list of fixed-size chunks, with an invalid-state latch
// once capacity is exceeded or a write has already failed.
package buffile

import (
	"fmt"
	"io"
	"os"

	"github.com/zsiec/svpipe/internal/perr"
)

// Whence selects the seek origin, mirroring io.Seeker's constants.
type Whence int

const (
	SeekSet Whence = iota
	SeekCur
	SeekEnd
)

const (
	defaultChunkSize = 1 << 20  // 1 MiB
	defaultMaxSize   = 512 << 20 // 512 MiB
)

// File is a chunked, append-and-seek memory buffer. Writes are split across
// as many chunks as needed, allocating a new chunk lazily as writePos
// crosses a chunk boundary. Not safe for concurrent use.
type File struct {
	name      string
	chunkSize int
	maxSize   int

	chunks         [][]byte
	lastWrittenPos int
	writePos       int
	invalid        bool

	opaque any
}

// New constructs a File. chunkSize and maxSize fall back to their defaults
// (1 MiB / 512 MiB) when 0.
func New(name string, chunkSize, maxSize int) *File {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	if maxSize <= 0 {
		maxSize = defaultMaxSize
	}
	return &File{name: name, chunkSize: chunkSize, maxSize: maxSize}
}

// Name returns the name this file was constructed with.
func (f *File) Name() string { return f.name }

// SetOpaque/Opaque let a consumer attach an arbitrary value to the file
// (the registry uses this to track staging bookkeeping).
func (f *File) SetOpaque(v any) { f.opaque = v }
func (f *File) Opaque() any     { return f.opaque }

// Size reports the highest write position ever reached.
func (f *File) Size() int { return f.lastWrittenPos }

// Seek repositions writePos, refusing to move past LastWrittenPos or
// negative. Unlike io.Seeker, it never extends the file: a write is what
// advances LastWrittenPos.
func (f *File) Seek(offset int64, whence Whence) (int64, error) {
	if f.invalid {
		return -1, &perr.InvalidStateError{Op: "seek"}
	}
	var pos int64
	switch whence {
	case SeekSet:
		pos = offset
	case SeekCur:
		pos = int64(f.writePos) + offset
	case SeekEnd:
		pos = int64(f.lastWrittenPos) + offset
	default:
		return -1, fmt.Errorf("buffile: invalid whence %d", whence)
	}
	if pos < 0 || pos > int64(f.lastWrittenPos) {
		return -1, fmt.Errorf("buffile: seek out of range: pos=%d lastWrittenPos=%d", pos, f.lastWrittenPos)
	}
	f.writePos = int(pos)
	return pos, nil
}

// Write appends data at the current writePos, splitting it across as many
// chunks as needed. Once the buffer exceeds maxSize, or any previous write
// failed, the file latches into an invalid state and every subsequent
// write fails.
func (f *File) Write(data []byte) (int, error) {
	if f.invalid {
		return 0, &perr.InvalidStateError{Op: "write"}
	}
	if len(data) == 0 {
		return 0, nil
	}

	total := 0
	for total < len(data) {
		end := total + f.chunkSize
		if end > len(data) {
			end = len(data)
		}
		n := f.writeToChunk(data[total:end])
		if n <= 0 {
			f.invalid = true
			return total, &perr.InvalidStateError{Op: "write"}
		}
		total += n
	}
	return total, nil
}

// writeToChunk writes at most one chunk's worth of data starting at the
// current writePos, allocating a new chunk lazily if writePos has reached
// the tail of the chunk list, and refusing to grow past maxSize.
func (f *File) writeToChunk(data []byte) int {
	currentChunk := f.writePos / f.chunkSize
	offset := f.writePos % f.chunkSize

	if currentChunk > len(f.chunks) {
		return 0
	}
	if currentChunk == len(f.chunks) {
		if f.chunkSize*len(f.chunks) >= f.maxSize {
			return 0
		}
		f.chunks = append(f.chunks, make([]byte, f.chunkSize))
	}

	chunk := f.chunks[currentChunk]
	n := f.chunkSize - offset
	if n > len(data) {
		n = len(data)
	}
	copy(chunk[offset:], data[:n])
	f.writePos += n
	if f.writePos > f.lastWrittenPos {
		f.lastWrittenPos = f.writePos
	}
	return n
}

// Save writes the logical contents (up to LastWrittenPos) to w.
func (f *File) Save(w io.Writer) error {
	if f.invalid {
		return &perr.InvalidStateError{Op: "save"}
	}
	remaining := f.lastWrittenPos
	for _, chunk := range f.chunks {
		n := f.chunkSize
		if n > remaining {
			n = remaining
		}
		if n <= 0 {
			break
		}
		if _, err := w.Write(chunk[:n]); err != nil {
			return err
		}
		remaining -= n
	}
	return nil
}

// SaveToPath creates (or truncates) path and saves the contents to it.
func (f *File) SaveToPath(path string) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer out.Close()
	return f.Save(out)
}
