package audio

import (
	"encoding/binary"
	"fmt"
)

// SamplesFromPCM decodes little-endian 16-bit PCM bytes, as sent in binary
// websocket frames, into samples.
func SamplesFromPCM(data []byte) ([]int16, error) {
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("pcm frame has odd length %d", len(data))
	}
	out := make([]int16, len(data)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(data[2*i:]))
	}
	return out, nil
}
