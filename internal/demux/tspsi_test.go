package demux

import "testing"

func TestParsePATSectionOneProgram(t *testing.T) {
	t.Parallel()
	programs := []struct{ num, pid uint16 }{{1, 0x1000}}
	data := buildPATSection(1, programs)

	pat, err := parsePATSection(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(pat.Programs) != 1 {
		t.Fatalf("expected 1 program, got %d", len(pat.Programs))
	}
	if pat.Programs[0].ProgramNumber != 1 {
		t.Errorf("program number = %d, want 1", pat.Programs[0].ProgramNumber)
	}
	if pat.Programs[0].ProgramMapID != 0x1000 {
		t.Errorf("PMT PID = 0x%X, want 0x1000", pat.Programs[0].ProgramMapID)
	}
}

func TestParsePATSectionSkipsNIT(t *testing.T) {
	t.Parallel()
	// program_number=0 is NIT, should be skipped
	programs := []struct{ num, pid uint16 }{{0, 0x10}, {1, 0x100}}
	data := buildPATSection(1, programs)

	pat, err := parsePATSection(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(pat.Programs) != 1 {
		t.Fatalf("expected 1 program (NIT skipped), got %d", len(pat.Programs))
	}
}

func TestParsePATSectionBadCRC(t *testing.T) {
	t.Parallel()
	programs := []struct{ num, pid uint16 }{{1, 0x100}}
	data := buildPATSection(1, programs)
	data[len(data)-1] ^= 0xFF

	if _, err := parsePATSection(data); err == nil {
		t.Error("expected CRC error")
	}
}

func TestParsePMTSectionH264AAC(t *testing.T) {
	t.Parallel()
	streams := []struct {
		streamType uint8
		pid        uint16
	}{
		{0x1B, 481},
		{0x0F, 494},
	}
	data := buildPMTSection(1, 481, streams)

	pmt, err := parsePMTSection(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(pmt.ElementaryStreams) != 2 {
		t.Fatalf("expected 2 streams, got %d", len(pmt.ElementaryStreams))
	}
	if pmt.ElementaryStreams[0].StreamType != 0x1B || pmt.ElementaryStreams[0].ElementaryPID != 481 {
		t.Errorf("stream 0 = %+v, want type 0x1B pid 481", pmt.ElementaryStreams[0])
	}
	if pmt.ElementaryStreams[1].StreamType != 0x0F || pmt.ElementaryStreams[1].ElementaryPID != 494 {
		t.Errorf("stream 1 = %+v, want type 0x0F pid 494", pmt.ElementaryStreams[1])
	}
}

func TestParsePMTSectionBadCRC(t *testing.T) {
	t.Parallel()
	streams := []struct {
		streamType uint8
		pid        uint16
	}{{0x1B, 481}}
	data := buildPMTSection(1, 481, streams)
	data[len(data)-1] ^= 0xFF

	if _, err := parsePMTSection(data); err == nil {
		t.Error("expected CRC error")
	}
}

func TestParsePSIPAT(t *testing.T) {
	t.Parallel()
	programs := []struct{ num, pid uint16 }{{1, 0x1000}}
	payload := buildTSPATPayload(1, programs)

	pm := newTSProgramMap()
	firstPkt := &tsPacket{Header: tsPacketHeader{PID: tsPIDPAT}}

	units, err := parsePSI(payload, tsPIDPAT, firstPkt, pm)
	if err != nil {
		t.Fatal(err)
	}
	if len(units) != 1 || units[0].PAT == nil {
		t.Fatalf("expected 1 PAT unit, got %+v", units)
	}
	if len(units[0].PAT.Programs) != 1 {
		t.Errorf("expected 1 program, got %d", len(units[0].PAT.Programs))
	}
}

func TestParsePSIPMT(t *testing.T) {
	t.Parallel()
	streams := []struct {
		streamType uint8
		pid        uint16
	}{{0x1B, 481}, {0x0F, 494}}
	payload := buildTSPMTPayload(1, 481, streams)

	pm := newTSProgramMap()
	pm.addPMTPID(0x1000)
	firstPkt := &tsPacket{Header: tsPacketHeader{PID: 0x1000}}

	units, err := parsePSI(payload, 0x1000, firstPkt, pm)
	if err != nil {
		t.Fatal(err)
	}
	if len(units) != 1 || units[0].PMT == nil {
		t.Fatalf("expected 1 PMT unit, got %+v", units)
	}
}

func TestParsePSIWithPointerField(t *testing.T) {
	t.Parallel()
	programs := []struct{ num, pid uint16 }{{1, 0x1000}}
	section := buildPATSection(1, programs)

	// pointer field = 3, with 3 filler bytes before the section
	payload := make([]byte, 1+3+len(section))
	payload[0] = 0x03
	payload[1], payload[2], payload[3] = 0xFF, 0xFF, 0xFF
	copy(payload[4:], section)

	pm := newTSProgramMap()
	firstPkt := &tsPacket{Header: tsPacketHeader{PID: tsPIDPAT}}

	units, err := parsePSI(payload, tsPIDPAT, firstPkt, pm)
	if err != nil {
		t.Fatal(err)
	}
	if len(units) != 1 {
		t.Fatalf("expected 1 unit, got %d", len(units))
	}
}

func TestParsePSIPaddingBytes(t *testing.T) {
	t.Parallel()
	programs := []struct{ num, pid uint16 }{{1, 0x1000}}
	section := buildPATSection(1, programs)

	payload := make([]byte, 1+len(section)+5)
	copy(payload[1:], section)
	for i := 1 + len(section); i < len(payload); i++ {
		payload[i] = 0xFF
	}

	pm := newTSProgramMap()
	firstPkt := &tsPacket{Header: tsPacketHeader{PID: tsPIDPAT}}

	units, err := parsePSI(payload, tsPIDPAT, firstPkt, pm)
	if err != nil {
		t.Fatal(err)
	}
	if len(units) != 1 {
		t.Fatalf("expected 1 unit (padding ignored), got %d", len(units))
	}
}
