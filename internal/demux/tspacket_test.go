package demux

import "testing"

func makeTSPacket(pid uint16, cc uint8, pusi bool, payload []byte) []byte {
	buf := make([]byte, tsPacketSize)
	buf[0] = tsSyncByte
	buf[1] = byte(pid>>8) & 0x1F
	buf[2] = byte(pid)
	buf[3] = 0x10 | (cc & 0x0F) // payload only
	if pusi {
		buf[1] |= 0x40
	}
	copy(buf[4:], payload)
	return buf
}

func makeTSPacketWithAF(pid uint16, cc uint8, afLen int, payload []byte) []byte {
	buf := make([]byte, tsPacketSize)
	buf[0] = tsSyncByte
	buf[1] = byte(pid>>8) & 0x1F
	buf[2] = byte(pid)
	if len(payload) > 0 {
		buf[3] = 0x30 | (cc & 0x0F) // adaptation + payload
	} else {
		buf[3] = 0x20 | (cc & 0x0F) // adaptation only
	}
	buf[4] = byte(afLen)
	offset := 5 + afLen
	if offset < tsPacketSize {
		copy(buf[offset:], payload)
	}
	return buf
}

func TestParseTSPacketNormal(t *testing.T) {
	t.Parallel()
	payload := []byte{0x01, 0x02, 0x03}
	buf := makeTSPacket(0x100, 5, false, payload)

	p, err := parseTSPacket(buf)
	if err != nil {
		t.Fatal(err)
	}

	if p.Header.PID != 0x100 {
		t.Errorf("PID = %d, want %d", p.Header.PID, 0x100)
	}
	if p.Header.ContinuityCounter != 5 {
		t.Errorf("CC = %d, want 5", p.Header.ContinuityCounter)
	}
	if p.Header.PayloadUnitStartIndicator {
		t.Error("PUSI should be false")
	}
	if !p.Header.HasPayload {
		t.Error("HasPayload should be true")
	}
	if p.Header.HasAdaptationField {
		t.Error("HasAdaptationField should be false")
	}
	if len(p.Payload) != 184 {
		t.Errorf("payload length = %d, want 184", len(p.Payload))
	}
	if p.Payload[0] != 0x01 || p.Payload[1] != 0x02 || p.Payload[2] != 0x03 {
		t.Error("payload content mismatch")
	}
}

func TestParseTSPacketPUSI(t *testing.T) {
	t.Parallel()
	buf := makeTSPacket(0x1E1, 0, true, nil)
	p, err := parseTSPacket(buf)
	if err != nil {
		t.Fatal(err)
	}
	if !p.Header.PayloadUnitStartIndicator {
		t.Error("PUSI should be true")
	}
	if p.Header.PID != 0x1E1 {
		t.Errorf("PID = 0x%X, want 0x1E1", p.Header.PID)
	}
}

func TestParseTSPacketTEI(t *testing.T) {
	t.Parallel()
	buf := makeTSPacket(0x100, 0, false, nil)
	buf[1] |= 0x80 // set TEI
	p, err := parseTSPacket(buf)
	if err != nil {
		t.Fatal(err)
	}
	if !p.Header.TransportErrorIndicator {
		t.Error("TEI should be true")
	}
}

func TestParseTSPacketAdaptationField(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name        string
		afLen       int
		payloadData []byte
		wantPayLen  int
	}{
		{"af_1_byte", 1, []byte{0xAA}, 188 - 6},
		{"af_10_bytes", 10, []byte{0xBB}, 188 - 15},
		{"af_183_bytes_no_payload", 183, nil, 0},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			buf := makeTSPacketWithAF(0x100, 0, tc.afLen, tc.payloadData)
			p, err := parseTSPacket(buf)
			if err != nil {
				t.Fatal(err)
			}
			if !p.Header.HasAdaptationField {
				t.Error("HasAdaptationField should be true")
			}
			if tc.payloadData != nil {
				if !p.Header.HasPayload {
					t.Error("HasPayload should be true")
				}
				if len(p.Payload) != tc.wantPayLen {
					t.Errorf("payload length = %d, want %d", len(p.Payload), tc.wantPayLen)
				}
			}
		})
	}
}

func TestParseTSPacketBadSyncByte(t *testing.T) {
	t.Parallel()
	buf := make([]byte, tsPacketSize)
	buf[0] = 0x00
	if _, err := parseTSPacket(buf); err == nil {
		t.Error("expected error for bad sync byte")
	}
}

func TestParseTSPacketWrongSize(t *testing.T) {
	t.Parallel()
	if _, err := parseTSPacket([]byte{0x47, 0x00, 0x00}); err == nil {
		t.Error("expected error for wrong packet size")
	}
}

func TestParseTSPacketMaxPID(t *testing.T) {
	t.Parallel()
	buf := makeTSPacket(0x1FFF, 0, false, nil)
	p, err := parseTSPacket(buf)
	if err != nil {
		t.Fatal(err)
	}
	if p.Header.PID != 0x1FFF {
		t.Errorf("PID = 0x%X, want 0x1FFF", p.Header.PID)
	}
}

func TestTSCRC32KnownSection(t *testing.T) {
	t.Parallel()
	// A minimal well-formed section (header with section_syntax_indicator
	// set) followed by its correct trailing CRC32 computed over the whole
	// buffer should verify cleanly; flipping a body byte must fail it.
	section := []byte{
		0x00,       // table_id
		0x80, 0x0D, // section_syntax_indicator=1, section_length=13
		0x00, 0x01, // transport_stream_id
		0xC1,       // version/current_next
		0x00, 0x00, // section/last_section
		0x00, 0x01, 0xE1, 0x00, // one PAT entry
	}
	crc := tsComputeCRC32(section)
	full := append(append([]byte{}, section...),
		byte(crc>>24), byte(crc>>16), byte(crc>>8), byte(crc))

	if err := tsVerifyCRC32(full); err != nil {
		t.Fatalf("expected valid CRC32, got %v", err)
	}

	corrupt := append([]byte{}, full...)
	corrupt[5] ^= 0xFF
	if err := tsVerifyCRC32(corrupt); err == nil {
		t.Fatal("expected CRC32 mismatch after corrupting a body byte")
	}
}
