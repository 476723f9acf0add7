package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/zsiec/svpipe/internal/demux"
)

var (
	videoFramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "svpipe_demux_video_frames_total",
			Help: "Video access units demuxed from an MPEG-TS source, by keyframe state",
		},
		[]string{"node", "keyframe"},
	)

	videoBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "svpipe_demux_video_bytes_total",
			Help: "Video access unit bytes demuxed from an MPEG-TS source",
		},
		[]string{"node"},
	)

	audioFramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "svpipe_demux_audio_frames_total",
			Help: "Audio frames demuxed from an MPEG-TS source, by track",
		},
		[]string{"node", "track"},
	)

	captionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "svpipe_demux_captions_total",
			Help: "Decoded CEA-608/708 caption frames, by channel",
		},
		[]string{"node", "channel"},
	)

	scte35Total = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "svpipe_demux_scte35_events_total",
			Help: "SCTE-35 splice events observed, by command type",
		},
		[]string{"node", "command"},
	)

	videoResolution = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "svpipe_demux_video_height_pixels",
			Help: "Most recently parsed video frame height",
		},
		[]string{"node"},
	)

	videoCodecInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "svpipe_demux_video_codec_info",
			Help: "Always 1; the codec label reports the active video codec",
		},
		[]string{"node", "codec"},
	)
)

// DemuxStats adapts a source's Prometheus collectors to demux.StatsRecorder,
// so a Demuxer can report telemetry without importing this package.
type DemuxStats struct {
	node string
}

// NewDemuxStats returns a demux.StatsRecorder that labels every metric
// with node, the owning source node's name.
func NewDemuxStats(node string) *DemuxStats {
	return &DemuxStats{node: node}
}

var _ demux.StatsRecorder = (*DemuxStats)(nil)

func (s *DemuxStats) RecordVideoFrame(bytes int64, isKeyframe bool, pts int64) {
	keyframe := "false"
	if isKeyframe {
		keyframe = "true"
	}
	videoFramesTotal.WithLabelValues(s.node, keyframe).Inc()
	videoBytesTotal.WithLabelValues(s.node).Add(float64(bytes))
}

func (s *DemuxStats) RecordAudioFrame(trackIdx int, bytes int64, pts int64, sampleRate, channels int) {
	audioFramesTotal.WithLabelValues(s.node, trackLabel(trackIdx)).Inc()
}

func (s *DemuxStats) RecordCaption(channel int) {
	captionsTotal.WithLabelValues(s.node, trackLabel(channel)).Inc()
}

func (s *DemuxStats) RecordResolution(width, height int) {
	videoResolution.WithLabelValues(s.node).Set(float64(height))
}

func (s *DemuxStats) RecordTimecode(tc string) {}

func (s *DemuxStats) RecordSCTE35(event demux.SCTE35Event) {
	scte35Total.WithLabelValues(s.node, event.CommandType).Inc()
}

func (s *DemuxStats) RecordVideoCodec(codec string) {
	videoCodecInfo.WithLabelValues(s.node, codec).Set(1)
}

func trackLabel(idx int) string {
	return strconv.Itoa(idx)
}
