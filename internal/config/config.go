// Package config loads a pipeline definition from YAML: the runtime's
// network addresses plus an ordered chain of declarative node stages
// spliced onto a caller-supplied source node. Grounded on
// bluenviron-mediamtx's direct gopkg.in/yaml.v3 dependency (the closest
// domain match in the pack for a YAML-configured media pipeline) and
// zsiec-prism/cmd/prism/main.go's envOr helper for the environment
// variable override convention.
package config

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/zsiec/svpipe/internal/audio"
	"github.com/zsiec/svpipe/internal/caption"
	"github.com/zsiec/svpipe/internal/fps"
	"github.com/zsiec/svpipe/internal/jitter"
	"github.com/zsiec/svpipe/internal/netsink"
	"github.com/zsiec/svpipe/internal/node"
	"github.com/zsiec/svpipe/internal/nodes"
	"github.com/zsiec/svpipe/internal/tqueue"
)

// NodeSpec declares one stage of the pipeline's declarative tail: Kind
// selects which constructor builds it, Params carries its typed
// configuration as decoded from YAML (strings, bools, numbers, nested
// maps).
type NodeSpec struct {
	Name   string         `yaml:"name"`
	Kind   string         `yaml:"kind"`
	Params map[string]any `yaml:"params"`
}

// Config is the top-level runtime configuration.
type Config struct {
	SRTAddr  string     `yaml:"srtAddr"`
	QUICAddr string     `yaml:"quicAddr"`
	APIAddr  string     `yaml:"apiAddr"`
	WebDir   string     `yaml:"webDir"`
	Pipeline []NodeSpec `yaml:"pipeline"`
}

// defaults mirrors cmd/prism/main.go's WT_ADDR/WEB_DIR/SRT_ADDR/API_ADDR
// fallback values.
func defaults() Config {
	return Config{
		SRTAddr:  ":6000",
		QUICAddr: ":4443",
		APIAddr:  ":4444",
		WebDir:   "web/dist",
	}
}

// Load reads and parses the YAML pipeline definition at path, applying
// the documented defaults for anything the file leaves zero, then
// environment variable overrides (see ApplyEnv).
func Load(path string) (*Config, error) {
	cfg := defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	ApplyEnv(&cfg)
	return &cfg, nil
}

// ApplyEnv overrides cfg's network addresses from the environment,
// following the same SRT_ADDR/WT_ADDR/API_ADDR/WEB_DIR names
// cmd/prism/main.go reads via envOr, so existing deployment tooling
// carries over unchanged.
func ApplyEnv(cfg *Config) {
	cfg.SRTAddr = envOr("SRT_ADDR", cfg.SRTAddr)
	cfg.QUICAddr = envOr("WT_ADDR", cfg.QUICAddr)
	cfg.APIAddr = envOr("API_ADDR", cfg.APIAddr)
	cfg.WebDir = envOr("WEB_DIR", cfg.WebDir)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// BuildChain constructs the declarative pipeline tail described by
// specs, attaching the first stage's source to src and each subsequent
// stage's source to the previous stage, and returns the outermost node.
// src is typically a demux/SRT/capture source node the caller
// constructed itself, since those need live connections or dialers that
// have no meaningful YAML representation.
func BuildChain(src node.Node, specs []NodeSpec, log *slog.Logger) (node.Node, error) {
	current := src
	for _, spec := range specs {
		n, err := buildNode(spec, log)
		if err != nil {
			return nil, fmt.Errorf("config: node %q: %w", spec.Name, err)
		}
		if err := n.SetSource(current, 0); err != nil {
			return nil, fmt.Errorf("config: wire node %q: %w", spec.Name, err)
		}
		current = n
	}
	return current, nil
}

func buildNode(spec NodeSpec, log *slog.Logger) (node.Node, error) {
	switch spec.Kind {
	case "caption":
		hevc, _ := spec.Params["hevc"].(bool)
		return caption.New(spec.Name, hevc, log), nil

	case "fpslimiter":
		silence, _ := spec.Params["silence"].(bool)
		opts := fps.Options{
			DesiredFPS: floatParam(spec.Params, "desiredFps", 0),
			TimeBase:   fps.PTSDelta,
		}
		return nodes.NewFPSLimiter(spec.Name, log, opts, silence), nil

	case "jitter":
		opts := jitter.Options{
			BufferTimeMs:       intParam(spec.Params, "bufferTimeMs", 0),
			BufferTimePausedMs: intParam(spec.Params, "bufferTimePausedMs", 0),
			TargetFPS:          floatParam(spec.Params, "targetFps", 0),
			JumpstartFPS:       floatParam(spec.Params, "jumpstartFps", 0),
			JumpstartEnabled:   boolParam(spec.Params, "jumpstartEnabled", false),
		}
		return jitter.New(spec.Name, log, opts), nil

	case "tqueue":
		opts := tqueue.Options{
			MaxQueueSize:     int(intParam(spec.Params, "maxQueueSize", 0)),
			Lossy:            boolParam(spec.Params, "lossy", false),
			SilentFPSLimiter: boolParam(spec.Params, "silentFpsLimiter", false),
			FPSLimit:         floatParam(spec.Params, "fpsLimit", 0),
		}
		return tqueue.New(spec.Name, log, opts), nil

	case "mmap":
		filename, _ := spec.Params["filename"].(string)
		return nodes.NewMmapSink(spec.Name, log, filename), nil

	case "audio":
		sampleRate := int(intParam(spec.Params, "sampleRate", 48000))
		channels := int(intParam(spec.Params, "channels", 2))
		ctx, err := audio.NewOtoContext(sampleRate, channels)
		if err != nil {
			return nil, fmt.Errorf("audio context: %w", err)
		}
		return audio.New(spec.Name, ctx, log), nil

	case "netsink":
		addr, _ := spec.Params["addr"].(string)
		ringSize := int(intParam(spec.Params, "ringSize", float64(netsink.DefaultRingSize)))
		listener, err := netsink.ListenQUIC(addr)
		if err != nil {
			return nil, fmt.Errorf("quic listener: %w", err)
		}
		return netsink.New(spec.Name, listener, ringSize, log), nil

	default:
		return nil, fmt.Errorf("unknown node kind %q", spec.Kind)
	}
}

func floatParam(params map[string]any, key string, fallback float64) float64 {
	switch v := params[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return fallback
	}
}

func intParam(params map[string]any, key string, fallback float64) int64 {
	switch v := params[key].(type) {
	case int:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return int64(fallback)
	}
}

func boolParam(params map[string]any, key string, fallback bool) bool {
	if v, ok := params[key].(bool); ok {
		return v
	}
	return fallback
}
