package hls

import "testing"

// TestDeriveLadderAppendsRemuxProfileForLowBitrateH264 covers §6's remux
// rule: a source already encoded as H.264 under the bitrate cap gets an
// extra passthrough profile alongside the transcoded ladder.
func TestDeriveLadderAppendsRemuxProfileForLowBitrateH264(t *testing.T) {
	profiles := DeriveLadder(1280, 720, "h264", 2_000_000, 6_000_000)
	if len(profiles) == 0 || !profiles[0].Remux {
		t.Fatalf("expected first profile to be the remux passthrough, got %+v", profiles)
	}
	if profiles[0].Bitrate != 2_000_000 || profiles[0].Width != 1280 || profiles[0].Height != 720 {
		t.Fatalf("remux profile = %+v, want source dimensions/bitrate preserved", profiles[0])
	}
	// the rest of the ladder follows, capped at maxBitrate=6_000_000.
	for _, p := range profiles[1:] {
		if p.Bitrate > 6_000_000 {
			t.Fatalf("profile %+v exceeds maxBitrate", p)
		}
	}
}

// TestDeriveLadderOmitsRemuxForNonH264Source covers the negative case: a
// non-H.264 source (or one at/above the cap) gets only the transcoded
// rungs, no passthrough profile.
func TestDeriveLadderOmitsRemuxForNonH264Source(t *testing.T) {
	profiles := DeriveLadder(1920, 1080, "h265", 4_000_000, 6_000_000)
	for _, p := range profiles {
		if p.Remux {
			t.Fatalf("unexpected remux profile for h265 source: %+v", p)
		}
	}
}

// TestDeriveLadderCapsAtMaxBitrate covers the bitrate ceiling: rungs above
// maxBitrate are excluded entirely.
func TestDeriveLadderCapsAtMaxBitrate(t *testing.T) {
	profiles := DeriveLadder(1280, 720, "h265", 0, 1_000_000)
	for _, p := range profiles {
		if p.Bitrate > 1_000_000 {
			t.Fatalf("profile %+v exceeds maxBitrate 1_000_000", p)
		}
	}
	if len(profiles) != 3 { // 300k/240p, 600k/360p, 1000k/480p
		t.Fatalf("got %d profiles, want 3: %+v", len(profiles), profiles)
	}
}

// TestDeriveLadderCutsOffAtSourceResolution covers scenario 6: a source at
// 1280x720 must not receive upscaled rungs at or above its own height, even
// with no user bitrate cap. Only the 240p/360p/480p rungs qualify, plus the
// remux passthrough.
func TestDeriveLadderCutsOffAtSourceResolution(t *testing.T) {
	profiles := DeriveLadder(1280, 720, "h264", 2_000_000, 100_000_000)
	if len(profiles) != 4 {
		t.Fatalf("got %d profiles, want 4 (remux + 240p/360p/480p): %+v", len(profiles), profiles)
	}
	if !profiles[0].Remux {
		t.Fatalf("expected profile 0 to be remux, got %+v", profiles[0])
	}
	wantHeights := []int{240, 360, 480}
	for i, h := range wantHeights {
		p := profiles[i+1]
		if p.Height != h {
			t.Errorf("profile %d height = %d, want %d", i+1, p.Height, h)
		}
		if p.Height >= 720 {
			t.Errorf("profile %d height %d should be below source height 720", i+1, p.Height)
		}
	}
}

// TestAspectWidthPreservesRatioAndEvenness covers the width derivation:
// aspect ratio preserved, result always even.
func TestAspectWidthPreservesRatioAndEvenness(t *testing.T) {
	// 1280x720 (16:9) at target height 480 -> width 853.33, rounds to 854
	// to stay even (853 is odd).
	w := aspectWidth(1280, 720, 480)
	if w%2 != 0 {
		t.Fatalf("aspectWidth = %d, want even", w)
	}
	if w != 854 {
		t.Fatalf("aspectWidth(1280,720,480) = %d, want 854", w)
	}
}

func TestSegmentAndPlaylistPaths(t *testing.T) {
	p := Profile{ID: 3}
	if got := SegmentPath("/hls/cam1", p); got != "/hls/cam1-3.ts" {
		t.Fatalf("SegmentPath = %q", got)
	}
	if got := PlaylistPath("/hls/cam1", p); got != "/hls/cam1-3.m3u8" {
		t.Fatalf("PlaylistPath = %q", got)
	}
	if got := MasterPlaylistPath("/hls/cam1"); got != "/hls/cam1.m3u8" {
		t.Fatalf("MasterPlaylistPath = %q", got)
	}
}
