package demux

import (
	"context"
	"errors"
	"io"
)

// tsReader reads raw MPEG-TS packets from a byte stream and reassembles
// them into PAT, PMT, and PES units. It is the packet-level engine behind
// [Demuxer]; Demuxer.Run drives it and fans parsed PES payloads out to
// video/audio/caption handling.
type tsReader struct {
	ctx           context.Context
	reader        io.Reader
	readBuf       []byte
	pool          *tsAccumulatorPool
	programMap    *tsProgramMap
	unitBuffer    []*tsUnit
	packetsParser tsPacketsParserFunc
	pktSize       int
	eof           bool
	eofUnits      []*tsUnit
}

// newTSReader creates a tsReader reading from r.
func newTSReader(ctx context.Context, r io.Reader, opts ...func(*tsReader)) *tsReader {
	pm := newTSProgramMap()
	d := &tsReader{
		ctx:        ctx,
		reader:     r,
		pktSize:    tsPacketSize,
		programMap: pm,
		pool:       newTSAccumulatorPool(pm),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.readBuf = make([]byte, d.pktSize)
	return d
}

// tsReaderOptPacketsParser installs a callback that can intercept
// accumulated packets for a PID before PSI/PES parsing runs on them.
func tsReaderOptPacketsParser(p tsPacketsParserFunc) func(*tsReader) {
	return func(d *tsReader) {
		d.packetsParser = p
	}
}

// nextUnit returns the next parsed unit from the stream. Returns io.EOF
// once all data has been consumed.
func (d *tsReader) nextUnit() (*tsUnit, error) {
	for {
		// Drain buffered results first.
		if len(d.unitBuffer) > 0 {
			u := d.unitBuffer[0]
			d.unitBuffer = d.unitBuffer[1:]
			return u, nil
		}

		// Drain EOF results.
		if d.eof {
			if len(d.eofUnits) > 0 {
				u := d.eofUnits[0]
				d.eofUnits = d.eofUnits[1:]
				return u, nil
			}
			return nil, io.EOF
		}

		if d.ctx.Err() != nil {
			return nil, d.ctx.Err()
		}

		// Read next packet.
		_, err := io.ReadFull(d.reader, d.readBuf)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				d.eof = true
				d.drainPool()
				continue
			}
			return nil, err
		}

		// The packet's payload slices the buffer it was parsed from and is
		// held by the accumulator until a flush, so parse a copy of readBuf.
		pkt, err := parseTSPacket(append([]byte(nil), d.readBuf...))
		if err != nil {
			continue // skip corrupt packets
		}

		flushed := d.pool.add(pkt)
		if flushed == nil {
			continue
		}

		units, err := d.processPackets(flushed)
		if err != nil {
			continue // skip corrupt sections
		}
		if len(units) == 0 {
			continue
		}

		d.learnPMTPIDs(units)

		d.unitBuffer = units[1:]
		return units[0], nil
	}
}

func (d *tsReader) drainPool() {
	for _, packets := range d.pool.dump() {
		units, err := d.processPackets(packets)
		if err != nil {
			continue
		}
		d.learnPMTPIDs(units)
		d.eofUnits = append(d.eofUnits, units...)
	}
}

// learnPMTPIDs records PMT PIDs named by any PAT among units, so the
// accumulator recognizes them as PSI once they start arriving.
func (d *tsReader) learnPMTPIDs(units []*tsUnit) {
	for _, u := range units {
		if u.PAT == nil {
			continue
		}
		for _, p := range u.PAT.Programs {
			d.programMap.addPMTPID(p.ProgramMapID)
		}
	}
}

func (d *tsReader) processPackets(packets []*tsPacket) ([]*tsUnit, error) {
	if len(packets) == 0 {
		return nil, nil
	}

	firstPacket := packets[0]
	pid := firstPacket.Header.PID

	if d.packetsParser != nil {
		units, handled, err := d.packetsParser(packets)
		if err != nil {
			return nil, err
		}
		if handled {
			return units, nil
		}
	}

	// Concatenate payloads.
	var payload []byte
	for _, p := range packets {
		payload = append(payload, p.Payload...)
	}
	if len(payload) == 0 {
		return nil, nil
	}

	if tsIsPSIPayload(pid, d.programMap) {
		return parsePSI(payload, pid, firstPacket, d.programMap)
	}

	if tsIsPESStart(payload) {
		pes, err := parsePES(payload)
		if err != nil {
			return nil, err
		}
		return []*tsUnit{{
			FirstPacket: firstPacket,
			PES:         pes,
		}}, nil
	}

	return nil, nil
}
