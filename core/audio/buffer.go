package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"
)

// ErrUnsupportedFormat is wrapped by DecodeError when the extension has no decoder.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// DecodeError reports audio bytes that could not be turned into a Buffer.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Buffer holds fully decoded stereo PCM at the output sample rate.
type Buffer struct {
	Samples    [][2]float64
	SampleRate beep.SampleRate
}

func (b *Buffer) Len() int { return len(b.Samples) }

func (b *Buffer) Duration() time.Duration {
	return b.SampleRate.D(len(b.Samples))
}

const decodeChunk = 4096

// resampleQuality is passed to beep.Resample; 4 is fine for ambience.
const resampleQuality = 4

// Decode decodes an encoded sound file, picking the decoder from the file
// extension of p, and resamples it to rate.
func Decode(p string, data []byte, rate beep.SampleRate) (*Buffer, error) {
	s, format, err := decoderFor(p, data)
	if err != nil {
		return nil, &DecodeError{Path: p, Err: err}
	}
	defer s.Close()

	var src beep.Streamer = s
	if format.SampleRate != rate {
		src = beep.Resample(resampleQuality, format.SampleRate, rate, s)
	}

	buf := &Buffer{SampleRate: rate}
	if n := s.Len(); n > 0 {
		buf.Samples = make([][2]float64, 0, rate.N(format.SampleRate.D(n))+1)
	}
	chunk := make([][2]float64, decodeChunk)
	for {
		n, ok := src.Stream(chunk)
		buf.Samples = append(buf.Samples, chunk[:n]...)
		if !ok {
			break
		}
	}
	if err := src.Err(); err != nil {
		return nil, &DecodeError{Path: p, Err: err}
	}
	if len(buf.Samples) == 0 {
		return nil, &DecodeError{Path: p, Err: errors.New("no audio frames")}
	}
	return buf, nil
}

func decoderFor(p string, data []byte) (beep.StreamSeekCloser, beep.Format, error) {
	r := bytes.NewReader(data)
	switch strings.ToLower(path.Ext(p)) {
	case ".wav", ".wave":
		return wav.Decode(r)
	case ".mp3":
		return mp3.Decode(io.NopCloser(r))
	case ".ogg", ".oga":
		return vorbis.Decode(io.NopCloser(r))
	case ".flac":
		return flac.Decode(r)
	default:
		return nil, beep.Format{}, ErrUnsupportedFormat
	}
}
