package engine

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/kass/go-eco-route/pkg/models"
)

// DefaultNoiseAmplitude bounds the jitter added to every estimate
const DefaultNoiseAmplitude = 5.0

// Noise perturbs a traffic or air-quality estimate. Implementations return a
// value in [-amplitude, +amplitude] and must be safe for concurrent use.
type Noise interface {
	Jitter(at time.Time, loc models.Location, salt float64) float64
}

// UniformNoise draws independent uniform jitter from a seeded source
type UniformNoise struct {
	mu        sync.Mutex
	rng       *rand.Rand
	amplitude float64
}

// NewUniformNoise creates a uniform noise source
func NewUniformNoise(seed int64, amplitude float64) *UniformNoise {
	return &UniformNoise{
		rng:       rand.New(rand.NewSource(seed)),
		amplitude: amplitude,
	}
}

func (n *UniformNoise) Jitter(time.Time, models.Location, float64) float64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return (n.rng.Float64()*2 - 1) * n.amplitude
}

// DailyNoise is a hash of the location, the salt and the calendar day, so the
// same query on the same day always sees the same conditions
type DailyNoise struct {
	Amplitude float64
}

func (d DailyNoise) Jitter(at time.Time, loc models.Location, salt float64) float64 {
	daySeed := float64(at.Year()*1000 + int(at.Month())*31 + at.Day())
	seed := loc.Lat*9283.17 + loc.Lng*3643.11 + salt + daySeed
	unit := math.Sin(seed*12.9898+78.233) * 43758.5453
	frac := unit - math.Floor(unit)
	return (frac*2 - 1) * d.Amplitude
}

// NoNoise disables jitter
type NoNoise struct{}

func (NoNoise) Jitter(time.Time, models.Location, float64) float64 { return 0 }
