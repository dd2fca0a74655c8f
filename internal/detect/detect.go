// Package detect models the sensing environment around each observation:
// signal strength from range to the radar origin, weather interference, and
// the resulting detection confidence. The randomness source is injectable so
// tests run deterministically.
package detect

import (
	"math"
	"math/rand/v2"
)

// Weather conditions the simulator can report.
var conditions = []string{"Clear", "Partly Cloudy", "Cloudy", "Rain", "Storm", "Fog"}

// Observation is the environmental annotation attached to a flight record.
// SignalStrength and Confidence are percentages on [0, 100].
type Observation struct {
	SignalStrength float64
	Confidence     float64
	Weather        string
	DistanceKm     float64
	Detected       bool
}

// Simulator produces Observations relative to a fixed radar origin.
type Simulator struct {
	RadarLat   float64
	RadarLon   float64
	MaxRangeKm float64
	rng        *rand.Rand
}

// New builds a Simulator. A nil source uses the shared global generator.
func New(radarLat, radarLon, maxRangeKm float64, src rand.Source) *Simulator {
	s := &Simulator{RadarLat: radarLat, RadarLon: radarLon, MaxRangeKm: maxRangeKm}
	if maxRangeKm <= 0 {
		s.MaxRangeKm = 250
	}
	if src != nil {
		s.rng = rand.New(src)
	}
	return s
}

func (s *Simulator) float64() float64 {
	if s.rng != nil {
		return s.rng.Float64()
	}
	return rand.Float64()
}

func (s *Simulator) intN(n int) int {
	if s.rng != nil {
		return s.rng.IntN(n)
	}
	return rand.IntN(n)
}

// Observe computes the environmental annotation for one position report.
func (s *Simulator) Observe(lat, lon, altitudeFt float64) Observation {
	// Flat-earth range in km; 1° ≈ 111 km.
	dlat := (lat - s.RadarLat) * 111
	dlon := (lon - s.RadarLon) * 111 * math.Cos(lat*math.Pi/180)
	distanceKm := math.Hypot(dlat, dlon)

	weather := conditions[s.intN(len(conditions))]

	if distanceKm > s.MaxRangeKm {
		return Observation{Weather: weather, DistanceKm: distanceKm}
	}

	// Base strength falls off with range; very low targets return weaker.
	strength := 1.0 - distanceKm/s.MaxRangeKm
	if altitudeFt <= 1000 {
		strength *= 0.5 + altitudeFt/2000
	}
	strength *= 0.85 + 0.15*s.float64()

	strength *= 1 - s.interference(weather, altitudeFt)
	if strength < 0 {
		strength = 0
	}

	confidence := math.Min(100, strength*120)

	return Observation{
		SignalStrength: strength * 100,
		Confidence:     confidence,
		Weather:        weather,
		DistanceKm:     distanceKm,
		Detected:       strength > 0.2,
	}
}

// interference returns the fractional signal loss for the given conditions.
func (s *Simulator) interference(weather string, altitudeFt float64) float64 {
	f := 0.0
	switch weather {
	case "Storm":
		f += 0.3
	case "Fog":
		f += 0.25
	case "Rain":
		f += 0.15
	}
	if altitudeFt > 50000 {
		f += 0.1
	} else if altitudeFt < 500 {
		f += 0.15
	}
	return f
}
