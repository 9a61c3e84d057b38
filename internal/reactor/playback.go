package reactor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"reactor-sim/internal/telemetry"
)

// ReplayLog replays telemetry samples from r to writer. A speed >0 scales the
// recorded gaps between samples (2 plays twice as fast); speed <= 0 inserts
// no delay.
func ReplayLog(ctx context.Context, r io.Reader, writer TelemetryWriter, speed float64) (int, error) {
	dec := json.NewDecoder(r)
	var prev time.Time
	n := 0
	for {
		var s telemetry.Sample
		if err := dec.Decode(&s); err != nil {
			if errors.Is(err, io.EOF) {
				return n, nil
			}
			return n, fmt.Errorf("decode sample %d: %w", n+1, err)
		}
		if !prev.IsZero() && speed > 0 {
			diff := time.Duration(float64(s.Timestamp.Sub(prev)) / speed)
			if diff > 0 {
				select {
				case <-time.After(diff):
				case <-ctx.Done():
					return n, ctx.Err()
				}
			}
		}
		if err := writer.Write(s); err != nil {
			return n, err
		}
		n++
		prev = s.Timestamp
	}
}

// ReplayLogFile opens a file and replays its telemetry samples.
func ReplayLogFile(ctx context.Context, path string, writer TelemetryWriter, speed float64) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return ReplayLog(ctx, f, writer, speed)
}
