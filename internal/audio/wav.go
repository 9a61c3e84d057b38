package audio

import (
	"errors"
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const pcmFormat = 1

// EncodeWAV writes buf as a 16-bit PCM RIFF/WAVE stream.
func EncodeWAV(ws io.WriteSeeker, buf *goaudio.IntBuffer) error {
	if buf == nil || buf.Format == nil {
		return errors.New("wav encode: missing format")
	}
	if buf.Format.SampleRate <= 0 || buf.Format.NumChannels <= 0 {
		return fmt.Errorf("invalid wav format: rate=%d channels=%d", buf.Format.SampleRate, buf.Format.NumChannels)
	}
	enc := wav.NewEncoder(ws, buf.Format.SampleRate, BitDepth, buf.Format.NumChannels, pcmFormat)
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("write wav data: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finish wav: %w", err)
	}
	return nil
}
