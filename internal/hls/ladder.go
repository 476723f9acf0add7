// Package hls derives the adaptive-bitrate profile ladder for a live
// stream and renders its media/master playlists (§6 of the HLS contract),
// grounded on the m3u8 data model shown in the pack's hls-m3u8 reference
// (MediaPlaylist/MasterPlaylist/Variant) and on gen-streams's
// write-temp-then-rename pattern for atomic playlist publication.
package hls

import "fmt"

// Profile describes one rendition in the adaptive ladder.
type Profile struct {
	ID        int
	Bitrate   int // bits/sec
	Width     int
	Height    int
	ProfileID H264Profile
	Level     int // level_idc, e.g. 31 for Level 3.1
	Remux     bool // true for the source-passthrough profile, no transcode
}

// ladderRungs is the fixed Baseline 1-6 (bitrate, height) table the ladder
// is derived from; width is computed per-source to preserve aspect ratio.
var ladderRungs = []struct {
	bitrate int
	height  int
}{
	{300_000, 240},
	{600_000, 360},
	{1_000_000, 480},
	{2_000_000, 720},
	{3_500_000, 1080},
	{6_000_000, 1080},
}

// DeriveLadder builds the profile ladder for a source of the given
// dimensions, codec, and bitrate cap. A rung is only used while its height
// is below the source height — upscaling a rendition past the source's own
// resolution wastes bandwidth without adding quality — and the first rung
// that fails that cutoff ends the ladder, since the table is ordered by
// ascending height and every rung past it would fail too. The bitrate cap
// is a secondary filter on top of that. A remux-only profile (profile 0,
// passthrough) is placed first, ahead of the transcoded rungs, when the
// source is already H.264 and its
// bitrate is below maxBitrate, so clients can play the original encode
// without a second transcode.
func DeriveLadder(sourceWidth, sourceHeight int, sourceCodec string, sourceBitrate, maxBitrate int) []Profile {
	var profiles []Profile
	if sourceCodec == "h264" && sourceBitrate > 0 && sourceBitrate < maxBitrate {
		profiles = append(profiles, Profile{
			ID:        0,
			Bitrate:   sourceBitrate,
			Width:     sourceWidth,
			Height:    sourceHeight,
			ProfileID: ProfileBaseline,
			Level:     31,
			Remux:     true,
		})
	}

	id := 1
	for _, rung := range ladderRungs {
		if rung.height >= sourceHeight {
			break
		}
		if maxBitrate > 0 && rung.bitrate > maxBitrate {
			break
		}
		width := aspectWidth(sourceWidth, sourceHeight, rung.height)
		profiles = append(profiles, Profile{
			ID:        id,
			Bitrate:   rung.bitrate,
			Width:     width,
			Height:    rung.height,
			ProfileID: ProfileBaseline,
			Level:     31,
		})
		id++
	}
	return profiles
}

// aspectWidth derives an even-numbered width preserving the source's aspect
// ratio at the target height (H.264 requires even dimensions).
func aspectWidth(sourceWidth, sourceHeight, targetHeight int) int {
	if sourceWidth <= 0 || sourceHeight <= 0 {
		return targetHeight * 16 / 9
	}
	w := sourceWidth * targetHeight / sourceHeight
	if w%2 != 0 {
		w++
	}
	return w
}

// SegmentPath returns the path for profile p's media segments, as used in
// the playlist's URI lines (<path>-<profile_id>.ts or equivalent).
func SegmentPath(basePath string, p Profile) string {
	return fmt.Sprintf("%s-%d.ts", basePath, p.ID)
}

// PlaylistPath returns profile p's own media playlist path
// (<basename>-<p>.m3u8).
func PlaylistPath(basePath string, p Profile) string {
	return fmt.Sprintf("%s-%d.m3u8", basePath, p.ID)
}

// MasterPlaylistPath returns the master playlist path (<path>.m3u8).
func MasterPlaylistPath(basePath string) string {
	return basePath + ".m3u8"
}
