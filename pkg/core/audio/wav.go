// Package audio packages captured microphone samples as self-contained WAV clips.
package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	// SampleRate is the nominal capture rate of browser microphone frames.
	SampleRate = 16000
	// BitsPerSample is the PCM sample width.
	BitsPerSample = 16
	// Channels is the channel count of captured audio (mono).
	Channels = 1
	// HeaderSize is the size of the canonical RIFF/WAVE header preceding the samples.
	HeaderSize = 44
	// MIMEType is the content type used when the clip is inlined into a request.
	MIMEType = "audio/wav"

	wavFormatPCM = 1
)

var errEmptyClip = errors.New("audio clip is empty")

// Info describes a WAV clip header.
type Info struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
	DataSize      int
}

// EncodeWAV wraps mono 16-bit samples in a 44-byte WAV header at the given rate.
// A non-positive rate falls back to SampleRate.
func EncodeWAV(samples []int16, sampleRate int) ([]byte, error) {
	if sampleRate <= 0 {
		sampleRate = SampleRate
	}

	out := &writeSeekBuffer{}
	enc := wav.NewEncoder(out, sampleRate, BitsPerSample, Channels, wavFormatPCM)
	buf := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: Channels,
			SampleRate:  sampleRate,
		},
		Data:           make([]int, len(samples)),
		SourceBitDepth: BitsPerSample,
	}
	for i, s := range samples {
		buf.Data[i] = int(s)
	}
	if err := enc.Write(buf); err != nil {
		_ = enc.Close()
		return nil, fmt.Errorf("encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("finalize wav: %w", err)
	}
	return out.Bytes(), nil
}

// Inspect decodes the header of a WAV clip.
func Inspect(clip []byte) (Info, error) {
	if len(clip) == 0 {
		return Info{}, errEmptyClip
	}
	d := wav.NewDecoder(bytes.NewReader(clip))
	d.ReadInfo()
	if err := d.Err(); err != nil {
		return Info{}, fmt.Errorf("read wav header: %w", err)
	}
	if !d.IsValidFile() {
		return Info{}, errors.New("not a valid wav clip")
	}
	if err := d.FwdToPCM(); err != nil {
		return Info{}, fmt.Errorf("locate pcm chunk: %w", err)
	}
	return Info{
		SampleRate:    int(d.SampleRate),
		Channels:      int(d.NumChans),
		BitsPerSample: int(d.BitDepth),
		DataSize:      d.PCMSize,
	}, nil
}

// writeSeekBuffer is an in-memory io.WriteSeeker; the wav encoder seeks back
// to patch chunk sizes once all samples are written.
type writeSeekBuffer struct {
	buf []byte
	pos int
}

func (b *writeSeekBuffer) Write(p []byte) (int, error) {
	end := b.pos + len(p)
	if end > len(b.buf) {
		if end > cap(b.buf) {
			grown := make([]byte, end, 2*end)
			copy(grown, b.buf)
			b.buf = grown
		} else {
			b.buf = b.buf[:end]
		}
	}
	copy(b.buf[b.pos:end], p)
	b.pos = end
	return len(p), nil
}

func (b *writeSeekBuffer) Seek(offset int64, whence int) (int64, error) {
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = int64(b.pos) + offset
	case io.SeekEnd:
		next = int64(len(b.buf)) + offset
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}
	if next < 0 {
		return 0, errors.New("negative seek position")
	}
	b.pos = int(next)
	return next, nil
}

func (b *writeSeekBuffer) Bytes() []byte {
	out := make([]byte, len(b.buf))
	copy(out, b.buf)
	return out
}
