// Package audio decodes synthesised speech and hands it to an output sink.
package audio

import (
	"encoding/binary"

	goaudio "github.com/go-audio/audio"
)

// Speech output format produced by the speech model.
const (
	SampleRate = 24000
	Channels   = 1
	BitDepth   = 16
)

// DecodePCM16LE wraps interleaved signed 16-bit little-endian PCM in an
// IntBuffer at sampleRate. A trailing partial frame is ignored.
func DecodePCM16LE(data []byte, channels, sampleRate int) *goaudio.IntBuffer {
	if channels <= 0 {
		channels = 1
	}
	frames := len(data) / (2 * channels)
	samples := make([]int, frames*channels)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(data[i*2 : i*2+2])))
	}
	return &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           samples,
		SourceBitDepth: BitDepth,
	}
}
