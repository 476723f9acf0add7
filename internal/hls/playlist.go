package hls

import (
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"strings"
	"time"
)

// Segment is one media segment entry in a profile's media playlist.
type Segment struct {
	URI      string
	Duration float64 // seconds
}

// WriteMediaPlaylist renders profile p's sliding-window media playlist
// (the last len(segments) entries, as the caller decides the window) to
// path, via the same write-temp-then-atomic-rename sequence used for the
// master playlist.
func WriteMediaPlaylist(log *slog.Logger, path string, segments []Segment, targetDuration int, mediaSequence uint64) error {
	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:3\n")
	fmt.Fprintf(&b, "#EXT-X-TARGETDURATION:%d\n", targetDuration)
	fmt.Fprintf(&b, "#EXT-X-MEDIA-SEQUENCE:%d\n", mediaSequence)
	for _, seg := range segments {
		fmt.Fprintf(&b, "#EXTINF:%.3f,\n%s\n", seg.Duration, seg.URI)
	}
	return atomicWriteWithRetry(log, path, []byte(b.String()), 5)
}

// WriteMasterPlaylist renders the multivariant playlist enumerating each
// profile's EXT-X-STREAM-INF line, per §6: BANDWIDTH, AVERAGE-BANDWIDTH,
// RESOLUTION, and a CODECS list naming the H.264 avc1 string (and, for
// profiles carrying audio, the fixed mp4a.40.2 AAC-LC string).
func WriteMasterPlaylist(log *slog.Logger, path string, basePath string, profiles []Profile, withAudio bool) error {
	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:3\n")
	for _, p := range profiles {
		codecs := CodecString(p.ProfileID, p.Level)
		if withAudio {
			codecs += ",mp4a.40.2"
		}
		fmt.Fprintf(&b, "#EXT-X-STREAM-INF:BANDWIDTH=%d,AVERAGE-BANDWIDTH=%d,RESOLUTION=%dx%d,CODECS=%q\n",
			p.Bitrate, p.Bitrate, p.Width, p.Height, codecs)
		b.WriteString(PlaylistPath(basePath, p))
		b.WriteString("\n")
	}
	return atomicWriteWithRetry(log, path, []byte(b.String()), 5)
}

// atomicWriteWithRetry writes data to a temp file beside path and renames
// it into place, retrying the rename up to maxAttempts times with
// exponential backoff on failure, per §6/§7.
func atomicWriteWithRetry(log *slog.Logger, path string, data []byte, maxAttempts int) error {
	tmp := fmt.Sprintf("%s.tmp.%d", path, rand.Int63())
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("hls: write temp playlist: %w", err)
	}

	var err error
	backoff := 10 * time.Millisecond
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err = os.Rename(tmp, path); err == nil {
			return nil
		}
		if attempt < maxAttempts-1 {
			time.Sleep(backoff)
			backoff *= 2
		}
	}
	os.Remove(tmp)
	wrapped := fmt.Errorf("hls: rename playlist into place after %d attempts: %w", maxAttempts, err)
	if log != nil {
		log.Error("hls playlist publish failed after exhausting retries", "path", path, "error", wrapped)
	}
	return wrapped
}
