package codec

import (
	"encoding/binary"
	"math"

	"main/internal/schema"
)

// TickPayloadSize is the encoded width of one tick record.
const TickPayloadSize = 48

// EncodeTick serializes a tick into a fixed-size little-endian payload.
func EncodeTick(dst []byte, t schema.Tick) []byte {
	if cap(dst) < TickPayloadSize {
		dst = make([]byte, TickPayloadSize)
	} else {
		dst = dst[:TickPayloadSize]
	}

	binary.LittleEndian.PutUint64(dst[0:8], math.Float64bits(t.Timestamp))
	binary.LittleEndian.PutUint64(dst[8:16], math.Float64bits(t.Open))
	binary.LittleEndian.PutUint64(dst[16:24], math.Float64bits(t.High))
	binary.LittleEndian.PutUint64(dst[24:32], math.Float64bits(t.Low))
	binary.LittleEndian.PutUint64(dst[32:40], math.Float64bits(t.Close))
	binary.LittleEndian.PutUint64(dst[40:48], math.Float64bits(t.Volume))

	return dst
}

// DecodeTick parses a fixed-size tick payload.
func DecodeTick(src []byte) (schema.Tick, bool) {
	if len(src) < TickPayloadSize {
		return schema.Tick{}, false
	}
	return schema.Tick{
		Timestamp: math.Float64frombits(binary.LittleEndian.Uint64(src[0:8])),
		Open:      math.Float64frombits(binary.LittleEndian.Uint64(src[8:16])),
		High:      math.Float64frombits(binary.LittleEndian.Uint64(src[16:24])),
		Low:       math.Float64frombits(binary.LittleEndian.Uint64(src[24:32])),
		Close:     math.Float64frombits(binary.LittleEndian.Uint64(src[32:40])),
		Volume:    math.Float64frombits(binary.LittleEndian.Uint64(src[40:48])),
	}, true
}
