package hls

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteMediaPlaylistRendersSegments(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cam1-1.m3u8")

	segments := []Segment{
		{URI: "cam1-1-000001.ts", Duration: 2.002},
		{URI: "cam1-1-000002.ts", Duration: 1.998},
	}
	if err := WriteMediaPlaylist(nil, path, segments, 2, 1); err != nil {
		t.Fatalf("WriteMediaPlaylist: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	want := "#EXTM3U\n" +
		"#EXT-X-VERSION:3\n" +
		"#EXT-X-TARGETDURATION:2\n" +
		"#EXT-X-MEDIA-SEQUENCE:1\n" +
		"#EXTINF:2.002,\ncam1-1-000001.ts\n" +
		"#EXTINF:1.998,\ncam1-1-000002.ts\n"
	if string(got) != want {
		t.Fatalf("playlist content =\n%q\nwant\n%q", got, want)
	}

	// no stray temp file left behind after a successful rename.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("dir has %d entries, want 1 (just the playlist): %v", len(entries), entries)
	}
}

func TestWriteMasterPlaylistRendersStreamInf(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cam1.m3u8")

	profiles := []Profile{
		{ID: 0, Bitrate: 2_000_000, Width: 1280, Height: 720, ProfileID: ProfileBaseline, Level: 31, Remux: true},
		{ID: 1, Bitrate: 300_000, Width: 426, Height: 240, ProfileID: ProfileBaseline, Level: 31},
	}
	if err := WriteMasterPlaylist(nil, path, filepath.Join(dir, "cam1"), profiles, true); err != nil {
		t.Fatalf("WriteMasterPlaylist: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	content := string(got)
	if !strings.HasPrefix(content, "#EXTM3U\n#EXT-X-VERSION:3\n") {
		t.Fatalf("missing header: %q", content)
	}
	if !strings.Contains(content, "BANDWIDTH=2000000") || !strings.Contains(content, "RESOLUTION=1280x720") {
		t.Fatalf("missing remux profile stream-inf: %q", content)
	}
	if !strings.Contains(content, `CODECS="avc1.42E01F,mp4a.40.2"`) {
		t.Fatalf("missing codecs string with audio: %q", content)
	}
	if !strings.Contains(content, filepath.Join(dir, "cam1")+"-0.m3u8") {
		t.Fatalf("missing profile 0 playlist reference: %q", content)
	}
	if !strings.Contains(content, filepath.Join(dir, "cam1")+"-1.m3u8") {
		t.Fatalf("missing profile 1 playlist reference: %q", content)
	}
}

func TestAtomicWriteWithRetrySucceedsOnFirstAttempt(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.m3u8")
	if err := atomicWriteWithRetry(nil, path, []byte("data"), 5); err != nil {
		t.Fatalf("atomicWriteWithRetry: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "data" {
		t.Fatalf("content = %q, want %q", got, "data")
	}
}

func TestAtomicWriteWithRetryFailsAfterExhaustingAttemptsAndCleansUpTemp(t *testing.T) {
	dir := t.TempDir()
	// path names an existing directory, so the temp file (written
	// alongside it, in dir) is created fine but every rename attempt onto
	// path fails (EISDIR).
	path := filepath.Join(dir, "out.m3u8")
	if err := os.Mkdir(path, 0755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}

	err := atomicWriteWithRetry(nil, path, []byte("data"), 2)
	if err == nil {
		t.Fatalf("expected error after exhausting attempts")
	}

	entries, rerr := os.ReadDir(dir)
	if rerr != nil {
		t.Fatalf("ReadDir: %v", rerr)
	}
	// only the pre-existing "out.m3u8" directory should remain; the temp
	// file must have been cleaned up.
	if len(entries) != 1 || entries[0].Name() != "out.m3u8" {
		t.Fatalf("temp file left behind after failure: %v", entries)
	}
}
