// Package scenario scripts timed injections against a running reactor.
package scenario

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"reactor-sim/internal/logging"
)

// Scenario is an ordered list of injections.
type Scenario struct {
	Name        string `yaml:"name,omitempty"`
	Description string `yaml:"description,omitempty"`
	Steps       []Step `yaml:"steps"`
}

// Step submits Input once After has elapsed since the previous step.
type Step struct {
	After time.Duration `yaml:"after"`
	Input string        `yaml:"input"`
}

// Submitter accepts injections; reactor.Engine satisfies it.
type Submitter interface {
	Submit(ctx context.Context, input string) error
}

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Load reads a YAML scenario definition from disk.
func Load(path string) (*Scenario, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	var s Scenario
	if err := yaml.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	return &s, nil
}

// Resolve returns the built-in scenario called ref, or loads ref as a file.
func Resolve(ref string) (*Scenario, error) {
	if s, ok := BuiltIn()[ref]; ok {
		return &s, nil
	}
	return Load(ref)
}

// Validate reports structural problems in the script.
func (s *Scenario) Validate() error {
	if len(s.Steps) == 0 {
		return errors.New("no steps")
	}
	for i, st := range s.Steps {
		if st.After < 0 {
			return fmt.Errorf("step %d: negative delay %s", i+1, st.After)
		}
		if strings.TrimSpace(st.Input) == "" {
			return fmt.Errorf("step %d: empty input", i+1)
		}
	}
	return nil
}

// Duration is the total scripted delay.
func (s *Scenario) Duration() time.Duration {
	var d time.Duration
	for _, st := range s.Steps {
		d += st.After
	}
	return d
}

// Run submits each step in order. A nil sleep uses wall-clock timers.
// Submissions that land while the reactor is busy are dropped by the
// reactor, not retried here.
func (s *Scenario) Run(ctx context.Context, sub Submitter, sleep SleepFunc) error {
	if sleep == nil {
		sleep = Sleep
	}
	logger := logging.FromContext(ctx).With("scenario", s.Name)
	logger.Info("scenario started", "steps", len(s.Steps), "duration", s.Duration())
	for i, st := range s.Steps {
		if err := sleep(ctx, st.After); err != nil {
			return err
		}
		if err := sub.Submit(ctx, st.Input); err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
		logger.Debug("scenario step submitted", "step", i+1)
	}
	logger.Info("scenario finished")
	return nil
}

// Sleep waits on a real timer.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
