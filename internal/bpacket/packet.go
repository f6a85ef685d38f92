package bpacket

import "encoding/binary"

const headerSize = 7 // <u8 id><u8 reserved><u32 LE length>

// Packet is one decoded frame: the packet id and its raw payload slice.
type Packet struct {
	ID      ID
	Payload []byte
}

// Encode returns the 7-byte-header + payload encoding of id/payload.
func Encode(id ID, payload []byte) []byte {
	out := make([]byte, headerSize+len(payload))
	out[0] = byte(id)
	out[1] = 0
	binary.LittleEndian.PutUint32(out[3:7], uint32(len(payload)))
	copy(out[headerSize:], payload)
	return out
}

// Concat concatenates multiple already-encoded packets into one stream.
// Packet builders are composable: the result is itself a valid stream.
func Concat(packets ...[]byte) []byte {
	total := 0
	for _, p := range packets {
		total += len(p)
	}
	out := make([]byte, 0, total)
	for _, p := range packets {
		out = append(out, p...)
	}
	return out
}

// Decode deframes a whole byte stream into a slice of packets, built
// eagerly before it returns; it does not yield packets one at a time. An
// unrecognized id byte is not rejected: the packet keeps its raw id (it
// is not rewritten to Unknown), and callers test it with Known. On a
// truncated header or truncated payload it stops cleanly (no panic, no
// error) — the already-decoded prefix is returned.
func Decode(stream []byte) []Packet {
	var out []Packet
	pos := 0
	for {
		if pos+headerSize > len(stream) {
			return out
		}
		id := ID(stream[pos])
		length := binary.LittleEndian.Uint32(stream[pos+3 : pos+7])
		start := pos + headerSize
		end := start + int(length)
		if end < start || end > len(stream) {
			return out
		}
		out = append(out, Packet{ID: id, Payload: stream[start:end]})
		pos = end
	}
}

// DecodeOne decodes a single packet from the front of stream, returning
// the packet, the number of bytes consumed, and whether decoding
// succeeded (false on truncation).
func DecodeOne(stream []byte) (Packet, int, bool) {
	if len(stream) < headerSize {
		return Packet{}, 0, false
	}
	id := ID(stream[0])
	length := binary.LittleEndian.Uint32(stream[3:7])
	end := headerSize + int(length)
	if end < headerSize || end > len(stream) {
		return Packet{}, 0, false
	}
	return Packet{ID: id, Payload: stream[headerSize:end]}, end, true
}
