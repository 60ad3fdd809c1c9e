package audio

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeWAV(t *testing.T, clip []byte) []int16 {
	t.Helper()
	buf, err := wav.NewDecoder(bytes.NewReader(clip)).FullPCMBuffer()
	require.NoError(t, err)
	out := make([]int16, len(buf.Data))
	for i, v := range buf.Data {
		out[i] = int16(v)
	}
	return out
}

func pcmFromSamples(samples []int16) []byte {
	out := make([]byte, 2*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(s))
	}
	return out
}

func rampSamples(n int) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = int16((i*37)%2000 - 1000)
	}
	return out
}

func TestEncodeWAV_HeaderLayout(t *testing.T) {
	samples := rampSamples(3200)

	clip, err := EncodeWAV(samples, SampleRate)
	require.NoError(t, err)
	require.Len(t, clip, HeaderSize+2*len(samples))

	assert.Equal(t, "RIFF", string(clip[0:4]))
	assert.Equal(t, uint32(36+2*len(samples)), binary.LittleEndian.Uint32(clip[4:8]))
	assert.Equal(t, "WAVE", string(clip[8:12]))
	assert.Equal(t, "fmt ", string(clip[12:16]))
	assert.Equal(t, uint16(1), binary.LittleEndian.Uint16(clip[20:22]))
	assert.Equal(t, uint16(Channels), binary.LittleEndian.Uint16(clip[22:24]))
	assert.Equal(t, uint32(SampleRate), binary.LittleEndian.Uint32(clip[24:28]))
	assert.Equal(t, uint32(SampleRate*2), binary.LittleEndian.Uint32(clip[28:32]))
	assert.Equal(t, uint16(2), binary.LittleEndian.Uint16(clip[32:34]))
	assert.Equal(t, uint16(BitsPerSample), binary.LittleEndian.Uint16(clip[34:36]))
	assert.Equal(t, "data", string(clip[36:40]))
	assert.Equal(t, uint32(2*len(samples)), binary.LittleEndian.Uint32(clip[40:44]))
}

func TestEncodeWAV_InspectRoundTrip(t *testing.T) {
	for _, n := range []int{1, 160, 3200, 16000} {
		clip, err := EncodeWAV(rampSamples(n), 0)
		require.NoError(t, err)

		info, err := Inspect(clip)
		require.NoError(t, err)
		assert.Equal(t, Info{SampleRate: 16000, Channels: 1, BitsPerSample: 16, DataSize: 2 * n}, info, "n=%d", n)
	}
}

func TestEncodeWAV_SamplesSurviveDecoding(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768, 1234}
	clip, err := EncodeWAV(samples, SampleRate)
	require.NoError(t, err)

	assert.Equal(t, samples, decodeWAV(t, clip))
}

func TestInspect_RejectsGarbage(t *testing.T) {
	_, err := Inspect(nil)
	require.Error(t, err)

	_, err = Inspect([]byte("definitely not a riff file, just some text padding it out"))
	require.Error(t, err)
}

func TestSamplesFromPCM(t *testing.T) {
	samples := []int16{-2, 0, 515, -32768}
	got, err := SamplesFromPCM(pcmFromSamples(samples))
	require.NoError(t, err)
	assert.Equal(t, samples, got)

	_, err = SamplesFromPCM([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestWriteSeekBuffer_OverwriteInPlace(t *testing.T) {
	b := &writeSeekBuffer{}
	_, _ = b.Write([]byte("hello world"))
	_, err := b.Seek(6, 0)
	require.NoError(t, err)
	_, _ = b.Write([]byte("WORLD"))
	assert.Equal(t, "hello WORLD", string(b.Bytes()))

	_, err = b.Seek(-1, 0)
	require.Error(t, err)
}
