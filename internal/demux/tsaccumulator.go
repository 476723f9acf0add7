package demux

import "sort"

const tsPIDPAT = 0x0000

// tsProgramMap tracks which PIDs carry PMT sections, learned from PAT
// entries as they're parsed.
type tsProgramMap struct {
	m map[uint16]bool
}

func newTSProgramMap() *tsProgramMap {
	return &tsProgramMap{m: make(map[uint16]bool)}
}

func (pm *tsProgramMap) addPMTPID(pid uint16) {
	pm.m[pid] = true
}

func (pm *tsProgramMap) isPMTPID(pid uint16) bool {
	return pm.m[pid]
}

// tsAccumulator buffers packets for a single PID until a flush trigger:
// a new payload-unit start, or (for PSI PIDs) a complete section.
type tsAccumulator struct {
	pid        uint16
	packets    []*tsPacket
	programMap *tsProgramMap
}

func newTSAccumulator(pid uint16, pm *tsProgramMap) *tsAccumulator {
	return &tsAccumulator{
		pid:        pid,
		programMap: pm,
	}
}

func (pa *tsAccumulator) add(p *tsPacket) []*tsPacket {
	// Skip packets with transport errors.
	if p.Header.TransportErrorIndicator {
		pa.packets = nil
		return nil
	}

	// Skip adaptation-only packets (no payload).
	if !p.Header.HasPayload {
		return nil
	}

	// Discontinuity check: compare CC against last buffered packet.
	// A signaled discontinuity indicator means the CC jump is expected.
	if len(pa.packets) > 0 && !p.Header.DiscontinuityIndicator {
		prev := pa.packets[len(pa.packets)-1].Header.ContinuityCounter
		expected := (prev + 1) & 0x0F
		if p.Header.ContinuityCounter != expected {
			if p.Header.ContinuityCounter == prev {
				return nil // duplicate packet, drop
			}
			// Unsignaled discontinuity — discard buffered packets.
			pa.packets = nil
		}
	}

	var flushed []*tsPacket

	if p.Header.PayloadUnitStartIndicator && len(pa.packets) > 0 {
		flushed = pa.packets
		pa.packets = nil
	}

	pa.packets = append(pa.packets, p)

	// For PSI PIDs, check if the section is complete.
	if flushed == nil && pa.isPSI() && tsPSIComplete(pa.packets) {
		flushed = pa.packets
		pa.packets = nil
	}

	return flushed
}

func (pa *tsAccumulator) isPSI() bool {
	return pa.pid == tsPIDPAT || pa.programMap.isPMTPID(pa.pid)
}

func (pa *tsAccumulator) flush() []*tsPacket {
	if len(pa.packets) == 0 {
		return nil
	}
	flushed := pa.packets
	pa.packets = nil
	return flushed
}

// tsPSIComplete checks whether the accumulated payloads contain a complete
// PSI section, without fully parsing it.
func tsPSIComplete(packets []*tsPacket) bool {
	var payload []byte
	for _, p := range packets {
		payload = append(payload, p.Payload...)
	}
	if len(payload) < 1 {
		return false
	}

	pointerField := int(payload[0])
	offset := 1 + pointerField
	if offset >= len(payload) {
		return false
	}

	// Walk sections.
	for offset < len(payload) {
		if payload[offset] == 0xFF {
			return true // stuffing bytes, section is complete
		}
		if offset+3 > len(payload) {
			return false
		}
		// section_syntax_indicator must be 1 for PAT/PMT.
		// Zero-padding bytes will have this bit clear.
		if payload[offset+1]&0x80 == 0 {
			return true // not a valid section header, treat as padding
		}
		sectionLength := int(payload[offset+1]&0x0F)<<8 | int(payload[offset+2])
		needed := 3 + sectionLength
		if offset+needed > len(payload) {
			return false
		}
		offset += needed
	}
	return true
}

// tsAccumulatorPool manages per-PID accumulators for one demuxed stream.
type tsAccumulatorPool struct {
	accs       map[uint16]*tsAccumulator
	programMap *tsProgramMap
}

func newTSAccumulatorPool(pm *tsProgramMap) *tsAccumulatorPool {
	return &tsAccumulatorPool{
		accs:       make(map[uint16]*tsAccumulator),
		programMap: pm,
	}
}

func (pp *tsAccumulatorPool) add(p *tsPacket) []*tsPacket {
	pid := p.Header.PID
	acc, ok := pp.accs[pid]
	if !ok {
		acc = newTSAccumulator(pid, pp.programMap)
		pp.accs[pid] = acc
	}
	return acc.add(p)
}

// dump flushes every accumulator at end of stream, PAT (PID 0) first so
// that PMT PIDs discovered along the way decode correctly.
func (pp *tsAccumulatorPool) dump() [][]*tsPacket {
	pids := make([]int, 0, len(pp.accs))
	for pid := range pp.accs {
		pids = append(pids, int(pid))
	}
	sort.Ints(pids)

	var all [][]*tsPacket
	for _, pid := range pids {
		if packets := pp.accs[uint16(pid)].flush(); packets != nil {
			all = append(all, packets)
		}
	}
	return all
}
