package demux

import "testing"

func FuzzParseTSPacket(f *testing.F) {
	pkt := make([]byte, tsPacketSize)
	pkt[0] = tsSyncByte
	pkt[1] = 0x40 // PUSI=1, PID=0
	pkt[2] = 0x00
	pkt[3] = 0x10 // no adaptation, has payload
	f.Add(pkt)

	afPkt := make([]byte, tsPacketSize)
	afPkt[0] = tsSyncByte
	afPkt[1] = 0x01 // PID high bits
	afPkt[2] = 0x00 // PID low bits
	afPkt[3] = 0x30 // adaptation + payload
	afPkt[4] = 0x07 // adaptation field length
	f.Add(afPkt)

	f.Fuzz(func(t *testing.T, data []byte) {
		if len(data) != tsPacketSize {
			return
		}
		parseTSPacket(data) // must not panic
	})
}
