package demux

import "testing"

func TestParsePESPTSOnly(t *testing.T) {
	t.Parallel()
	data := []byte{0xAA, 0xBB, 0xCC}
	buf := buildPESPacket(0xC0, 90000, 0, true, false, data)

	pes, err := parsePES(buf)
	if err != nil {
		t.Fatal(err)
	}
	if pes.Header.StreamID != 0xC0 {
		t.Errorf("stream ID = 0x%02X, want 0xC0", pes.Header.StreamID)
	}
	if pes.Header.OptionalHeader == nil || pes.Header.OptionalHeader.PTS == nil {
		t.Fatal("expected PTS")
	}
	if pes.Header.OptionalHeader.PTS.Base != 90000 {
		t.Errorf("PTS = %d, want 90000", pes.Header.OptionalHeader.PTS.Base)
	}
	if pes.Header.OptionalHeader.DTS != nil {
		t.Error("DTS should be nil")
	}
	if len(pes.Data) != 3 {
		t.Errorf("data length = %d, want 3", len(pes.Data))
	}
}

func TestParsePESPTSAndDTS(t *testing.T) {
	t.Parallel()
	buf := buildPESPacket(0xE0, 2790000, 2782492, true, true, []byte{0x01, 0x02})

	pes, err := parsePES(buf)
	if err != nil {
		t.Fatal(err)
	}
	if pes.Header.OptionalHeader.PTS == nil || pes.Header.OptionalHeader.PTS.Base != 2790000 {
		t.Errorf("PTS = %+v, want 2790000", pes.Header.OptionalHeader.PTS)
	}
	if pes.Header.OptionalHeader.DTS == nil || pes.Header.OptionalHeader.DTS.Base != 2782492 {
		t.Errorf("DTS = %+v, want 2782492", pes.Header.OptionalHeader.DTS)
	}
}

func TestParsePESNoTimestamps(t *testing.T) {
	t.Parallel()
	buf := buildPESPacket(0xC0, 0, 0, false, false, []byte{0x01})

	pes, err := parsePES(buf)
	if err != nil {
		t.Fatal(err)
	}
	if pes.Header.OptionalHeader == nil {
		t.Fatal("expected optional header")
	}
	if pes.Header.OptionalHeader.PTS != nil {
		t.Error("PTS should be nil")
	}
}

func TestParsePESVideoUnboundedLength(t *testing.T) {
	t.Parallel()
	data := make([]byte, 500)
	for i := range data {
		data[i] = byte(i)
	}
	buf := buildPESPacket(0xE0, 90000, 0, true, false, data)

	pes, err := parsePES(buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(pes.Data) != 500 {
		t.Errorf("data length = %d, want 500", len(pes.Data))
	}
}

func TestParsePESPaddingStream(t *testing.T) {
	t.Parallel()
	buf := []byte{0x00, 0x00, 0x01, 0xBE, 0x00, 0x04, 0xFF, 0xFF, 0xFF, 0xFF}
	pes, err := parsePES(buf)
	if err != nil {
		t.Fatal(err)
	}
	if pes.Header.StreamID != 0xBE {
		t.Errorf("stream ID = 0x%02X, want 0xBE", pes.Header.StreamID)
	}
	if pes.Header.OptionalHeader != nil {
		t.Error("padding stream should not have optional header")
	}
	if len(pes.Data) != 4 {
		t.Errorf("data length = %d, want 4", len(pes.Data))
	}
}

func TestParsePESKnownPTSValues(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		pts  int64
	}{
		{"zero", 0},
		{"one_second", 90000},
		{"one_minute", 5400000},
		{"golden_first_video", 2790000},
		{"large", 8589934591}, // max 33-bit value
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			buf := buildPESPacket(0xC0, tc.pts, 0, true, false, []byte{0x00})
			pes, err := parsePES(buf)
			if err != nil {
				t.Fatal(err)
			}
			if pes.Header.OptionalHeader.PTS.Base != tc.pts {
				t.Errorf("PTS = %d, want %d", pes.Header.OptionalHeader.PTS.Base, tc.pts)
			}
		})
	}
}

func TestTSIsPESStart(t *testing.T) {
	t.Parallel()
	if !tsIsPESStart([]byte{0x00, 0x00, 0x01, 0xE0}) {
		t.Error("should detect PES start code")
	}
	if tsIsPESStart([]byte{0x00, 0x00, 0x00}) {
		t.Error("should not detect non-PES data")
	}
	if tsIsPESStart([]byte{0x00, 0x00}) {
		t.Error("should not detect short data")
	}
}

func TestParsePTSOrDTSRoundtrip(t *testing.T) {
	t.Parallel()
	values := []int64{0, 1, 90000, 2790000, 8589934591}
	for _, v := range values {
		encoded := encodePTSOrDTS(0x02, v)
		cr := parsePTSOrDTS(encoded)
		if cr == nil {
			t.Fatalf("parsePTSOrDTS returned nil for %d", v)
		}
		if cr.Base != v {
			t.Errorf("round-trip: got %d, want %d", cr.Base, v)
		}
	}
}

func TestParsePESInvalidStartCode(t *testing.T) {
	t.Parallel()
	buf := []byte{0x00, 0x00, 0x00, 0xE0, 0x00, 0x00}
	if _, err := parsePES(buf); err == nil {
		t.Error("expected error for invalid start code")
	}
}

func TestParsePESTooShort(t *testing.T) {
	t.Parallel()
	if _, err := parsePES([]byte{0x00, 0x00, 0x01}); err == nil {
		t.Error("expected error for short packet")
	}
}
