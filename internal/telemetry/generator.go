package telemetry

import (
	"math/rand"
	"time"
)

const (
	initialPowerBase   = 20.0
	initialPowerJitter = 10.0
	initialHeatBase    = 15.0
	initialHeatJitter  = 5.0

	powerFluctuation = 5.0
	heatFluctuation  = 3.0

	processingPowerBoost = 20.0
	processingHeatBoost  = 30.0
)

// Generator keeps a fixed-length sliding window of synthetic samples.
// It is not safe for concurrent use; the reactor engine owns it.
type Generator struct {
	ClusterID string

	capacity    int
	window      []Sample
	initialized bool
	rand        *rand.Rand
	now         func() time.Time
}

// NewGenerator creates a generator for a window of the given capacity.
// A nil rng or clock falls back to a time-seeded source and time.Now.
func NewGenerator(clusterID string, capacity int, rng *rand.Rand, now func() time.Time) *Generator {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if now == nil {
		now = time.Now
	}
	return &Generator{
		ClusterID: clusterID,
		capacity:  capacity,
		rand:      rng,
		now:       now,
	}
}

// Initialize fills the window with the starting samples. Only the first
// call has an effect.
func (g *Generator) Initialize() {
	if g.initialized {
		return
	}
	g.initialized = true
	ts := g.now().UTC()
	g.window = make([]Sample, 0, g.capacity)
	for i := 0; i < g.capacity; i++ {
		g.window = append(g.window, Sample{
			ClusterID: g.ClusterID,
			Sequence:  uint64(i),
			Power:     initialPowerBase + g.rand.Float64()*initialPowerJitter,
			Heat:      initialHeatBase + g.rand.Float64()*initialHeatJitter,
			Stability: MaxValue,
			Timestamp: ts,
		})
	}
}

// Tick computes the next sample from the last one, appends it and evicts the
// oldest. processing selects the boosted fluctuation; stability is copied
// into the sample as read from the controller.
func (g *Generator) Tick(processing bool, stability float64) Sample {
	g.Initialize()
	last := g.window[len(g.window)-1]

	var pFactor, hFactor float64
	if processing {
		pFactor = processingPowerBoost
		hFactor = processingHeatBoost
	}

	next := Sample{
		ClusterID: g.ClusterID,
		Sequence:  last.Sequence + 1,
		Power:     clamp(last.Power+(g.rand.Float64()-0.5)*powerFluctuation+pFactor, MinValue, MaxValue),
		Heat:      clamp(last.Heat+(g.rand.Float64()-0.5)*heatFluctuation+hFactor, MinValue, MaxValue),
		Stability: clamp(stability, MinValue, MaxValue),
		Timestamp: g.now().UTC(),
	}

	copy(g.window, g.window[1:])
	g.window[len(g.window)-1] = next
	return next
}

// Window returns a copy of the current samples, oldest first.
func (g *Generator) Window() []Sample {
	out := make([]Sample, len(g.window))
	copy(out, g.window)
	return out
}

// Last returns the newest sample, or the zero Sample before Initialize.
func (g *Generator) Last() Sample {
	if len(g.window) == 0 {
		return Sample{}
	}
	return g.window[len(g.window)-1]
}

// Capacity returns the configured window length.
func (g *Generator) Capacity() int { return g.capacity }

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
