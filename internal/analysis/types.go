// Package analysis is the boundary to the generative-AI collaborators that
// analyse injections and voice their summaries.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

// ThreatLevel is the analysis' assessment of an injection.
type ThreatLevel string

const (
	ThreatLow      ThreatLevel = "Low"
	ThreatMedium   ThreatLevel = "Medium"
	ThreatHigh     ThreatLevel = "High"
	ThreatCritical ThreatLevel = "Critical"
)

// Severe reports whether the level destabilises the core.
func (t ThreatLevel) Severe() bool {
	return t == ThreatHigh || t == ThreatCritical
}

// ParseThreatLevel matches s case-insensitively against the known levels.
func ParseThreatLevel(s string) (ThreatLevel, bool) {
	for _, lvl := range []ThreatLevel{ThreatLow, ThreatMedium, ThreatHigh, ThreatCritical} {
		if strings.EqualFold(strings.TrimSpace(s), string(lvl)) {
			return lvl, true
		}
	}
	return "", false
}

// ReactionResult is a validated analysis of one injection.
type ReactionResult struct {
	Summary     string      `json:"summary"`
	Insights    []string    `json:"analysis"`
	ThreatLevel ThreatLevel `json:"threatLevel"`
	Efficiency  float64     `json:"efficiency"`
}

// Analyzer turns free text into a ReactionResult.
type Analyzer interface {
	Analyze(ctx context.Context, input string) (ReactionResult, error)
}

// Speaker synthesises text into raw PCM audio (s16le, mono, 24 kHz).
type Speaker interface {
	Speak(ctx context.Context, text string) ([]byte, error)
}

var (
	// ErrMalformedResult is returned when the model output does not match
	// the ReactionResult contract.
	ErrMalformedResult = errors.New("malformed reaction result")
	// ErrNoAudio is returned when a speech response carries no audio data.
	ErrNoAudio = errors.New("speech response contained no audio")
)

type rawResult struct {
	Summary     *string  `json:"summary"`
	Analysis    []string `json:"analysis"`
	ThreatLevel *string  `json:"threatLevel"`
	Efficiency  *float64 `json:"efficiency"`
}

// ParseResult decodes model output defensively. Unknown threat levels,
// missing fields and non-finite efficiency are rejected; efficiency is
// clamped to [0,100] and blank insights are dropped.
func ParseResult(data []byte) (ReactionResult, error) {
	data = bytes.TrimSpace(data)
	var raw rawResult
	if err := json.Unmarshal(data, &raw); err != nil {
		return ReactionResult{}, fmt.Errorf("%w: %v", ErrMalformedResult, err)
	}
	if raw.Summary == nil {
		return ReactionResult{}, fmt.Errorf("%w: missing summary", ErrMalformedResult)
	}
	if raw.ThreatLevel == nil {
		return ReactionResult{}, fmt.Errorf("%w: missing threatLevel", ErrMalformedResult)
	}
	lvl, ok := ParseThreatLevel(*raw.ThreatLevel)
	if !ok {
		return ReactionResult{}, fmt.Errorf("%w: unknown threatLevel %q", ErrMalformedResult, *raw.ThreatLevel)
	}
	if raw.Efficiency == nil {
		return ReactionResult{}, fmt.Errorf("%w: missing efficiency", ErrMalformedResult)
	}
	eff := *raw.Efficiency
	if math.IsNaN(eff) || math.IsInf(eff, 0) {
		return ReactionResult{}, fmt.Errorf("%w: efficiency not finite", ErrMalformedResult)
	}
	eff = math.Max(0, math.Min(100, eff))

	insights := make([]string, 0, len(raw.Analysis))
	for _, in := range raw.Analysis {
		if in = strings.TrimSpace(in); in != "" {
			insights = append(insights, in)
		}
	}
	return ReactionResult{
		Summary:     strings.TrimSpace(*raw.Summary),
		Insights:    insights,
		ThreatLevel: lvl,
		Efficiency:  eff,
	}, nil
}
