package capture

import (
	"context"
	"fmt"
	"unsafe"

	"github.com/ebitengine/purego"
)

// NewPuregoCaptureFunc dlopens a platform capture shared library and
// binds its capture_frame(uint8_t **bufOut, int32_t *lenOut) int32 C ABI
// entry point, the binding purego performs without CGo. This is the
// production counterpart to localCapture.hpp's Objective-C capture
// session, reached here as a plain C export rather than a linked
// framework.
func NewPuregoCaptureFunc(libPath, symbol string) (CaptureFunc, error) {
	handle, err := purego.Dlopen(libPath, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, fmt.Errorf("capture: dlopen %s: %w", libPath, err)
	}

	var captureFrame func(bufOut *uintptr, lenOut *int32) int32
	purego.RegisterLibFunc(&captureFrame, handle, symbol)

	return func(ctx context.Context) ([]byte, error) {
		var bufPtr uintptr
		var length int32
		if rc := captureFrame(&bufPtr, &length); rc != 0 {
			return nil, fmt.Errorf("capture: %s returned %d", symbol, rc)
		}
		if bufPtr == 0 || length <= 0 {
			return nil, fmt.Errorf("capture: %s returned an empty frame", symbol)
		}
		return unsafe.Slice((*byte)(unsafe.Pointer(bufPtr)), int(length)), nil
	}, nil
}
