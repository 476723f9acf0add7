// Package demux implements MPEG-TS demuxing with H.264/H.265 video and AAC
// audio parsing. It splits a transport stream into discrete video frames,
// audio frames, closed captions (CEA-608/708), and SCTE-35 splice events.
//
// The central type is [Demuxer], which reads from an [io.Reader] and produces
// parsed frames on typed channels. Codec-specific parsing is provided by
// [ParseAnnexB], [ParseSPS], [ParseADTS], and their HEVC counterparts.
//
// The packet-level MPEG-TS engine (PAT/PMT/PES reassembly, CRC32, the
// ts-prefixed types in tstypes.go) lives in this package rather than a
// separate one: Demuxer is its only caller, so the ts* identifiers are
// unexported and named for demux's own use instead of being designed as
// a reusable public API.
package demux
