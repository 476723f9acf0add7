package capture

import (
	"context"
	"errors"
	"testing"

	"github.com/zsiec/svpipe/internal/frame"
	"github.com/zsiec/svpipe/internal/perr"
)

func TestReadFrameWrapsCaptureBytes(t *testing.T) {
	want := []byte{1, 2, 3, 4, 5}
	n := New("capture", func(ctx context.Context) ([]byte, error) {
		return want, nil
	}, 320, 240, nil)

	f, err := n.ReadFrame(context.Background())
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if f.MediaType() != frame.MediaVideo {
		t.Fatalf("MediaType = %v, want MediaVideo", f.MediaType())
	}
	if f.Width() != 320 || f.Height() != 240 {
		t.Fatalf("dimensions = %dx%d, want 320x240", f.Width(), f.Height())
	}
	if !f.IsKeyframe() {
		t.Fatalf("capture frames should always be marked as keyframes")
	}
	if string(f.Data()) != string(want) {
		t.Fatalf("Data = %v, want %v", f.Data(), want)
	}
}

func TestReadFrameWrapsCaptureErrorAsIo(t *testing.T) {
	wantErr := errors.New("device unavailable")
	n := New("capture", func(ctx context.Context) ([]byte, error) {
		return nil, wantErr
	}, 320, 240, nil)

	_, err := n.ReadFrame(context.Background())
	var ioErr *perr.IoError
	if !errors.As(err, &ioErr) {
		t.Fatalf("expected *perr.IoError, got %v", err)
	}
	if !errors.Is(ioErr.Err, wantErr) {
		t.Fatalf("wrapped error = %v, want %v", ioErr.Err, wantErr)
	}
}

func TestSetGetParamRoundTrip(t *testing.T) {
	n := New("capture", func(ctx context.Context) ([]byte, error) { return nil, nil }, 0, 0, nil)

	if err := n.SetParam("captureFps", 30.0); err != nil {
		t.Fatalf("SetParam captureFps: %v", err)
	}
	if err := n.SetParam("rotation", 90); err != nil {
		t.Fatalf("SetParam rotation: %v", err)
	}
	if err := n.SetParam("width", 640); err != nil {
		t.Fatalf("SetParam width: %v", err)
	}

	v, err := n.GetParam("captureFps")
	if err != nil || v != 30.0 {
		t.Fatalf("GetParam captureFps = %v, %v", v, err)
	}
	if n.Width() != 640 {
		t.Fatalf("Width() = %d, want 640", n.Width())
	}
	if _, err := n.GetParam("nonsense"); err == nil {
		t.Fatalf("expected UnknownParameter for an unrecognized key")
	}
}
