package audio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Player receives raw speech PCM for output.
type Player interface {
	Play(ctx context.Context, pcm []byte) error
}

// Discard drops all audio.
var Discard Player = discard{}

type discard struct{}

func (discard) Play(context.Context, []byte) error { return nil }

// WAVFilePlayer stores each clip as speech-<unixnano>.wav in Dir.
type WAVFilePlayer struct {
	Dir string
	now func() time.Time
}

// NewWAVFilePlayer creates Dir if needed.
func NewWAVFilePlayer(dir string) (*WAVFilePlayer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create audio dir: %w", err)
	}
	return &WAVFilePlayer{Dir: dir, now: time.Now}, nil
}

// Play encodes pcm as mono 24 kHz WAV. The clip is written to a temporary
// file and renamed into place, so a failed encode leaves nothing behind.
func (p *WAVFilePlayer) Play(ctx context.Context, pcm []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	buf := DecodePCM16LE(pcm, Channels, SampleRate)
	if buf.NumFrames() == 0 {
		return fmt.Errorf("speech clip has no samples")
	}
	f, err := os.CreateTemp(p.Dir, ".speech-*.wav.tmp")
	if err != nil {
		return fmt.Errorf("create temp clip: %w", err)
	}
	tmp := f.Name()
	if err := EncodeWAV(f, buf); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close %s: %w", tmp, err)
	}
	path := filepath.Join(p.Dir, fmt.Sprintf("speech-%d.wav", p.now().UnixNano()))
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("store clip: %w", err)
	}
	return nil
}
