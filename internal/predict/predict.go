// Package predict extrapolates short-horizon aircraft trajectories from
// current kinematics using a constant-velocity equirectangular model.
package predict

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// knots to degrees-per-second at the equator: 1 kt ≈ 1/60 deg/h ≈ 1/216000 deg/s.
const knotsToDegPerSec = 1.0 / 216000.0

// cos(lat) denominator clamp near the poles.
const minCosLat = 1e-6

// Sample is one predicted position. It serializes as [lat, lon, t_seconds].
type Sample struct {
	Latitude      float64
	Longitude     float64
	OffsetSeconds int
}

// MarshalJSON encodes the sample as a three-element array.
func (s Sample) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]float64{s.Latitude, s.Longitude, float64(s.OffsetSeconds)})
}

// UnmarshalJSON decodes the three-element array form.
func (s *Sample) UnmarshalJSON(data []byte) error {
	var arr [3]float64
	if err := json.Unmarshal(data, &arr); err != nil {
		return fmt.Errorf("failed to decode trajectory sample: %w", err)
	}
	s.Latitude = arr[0]
	s.Longitude = arr[1]
	s.OffsetSeconds = int(arr[2])
	return nil
}

// Predictor produces fixed-stride forecasts over a configured horizon.
type Predictor struct {
	Horizon time.Duration
	Stride  time.Duration
}

// New returns a Predictor with the given horizon and stride; non-positive
// values fall back to the defaults (180 s horizon, 30 s stride).
func New(horizon, stride time.Duration) *Predictor {
	if horizon <= 0 {
		horizon = 180 * time.Second
	}
	if stride <= 0 {
		stride = 30 * time.Second
	}
	return &Predictor{Horizon: horizon, Stride: stride}
}

// Path returns the predicted positions at each stride from t=0 up to (but
// not including) the horizon. It never fails.
func (p *Predictor) Path(lat, lon, speedKt, headingDeg float64) []Sample {
	v := speedKt * knotsToDegPerSec
	headingRad := headingDeg * math.Pi / 180

	cosLat := math.Cos(lat * math.Pi / 180)
	if math.Abs(cosLat) < minCosLat {
		cosLat = minCosLat
	}

	n := int(p.Horizon / p.Stride)
	samples := make([]Sample, 0, n)
	for i := 0; i < n; i++ {
		t := float64(i) * p.Stride.Seconds()
		dlat := math.Cos(headingRad) * v * t
		dlon := math.Sin(headingRad) * v * t / cosLat
		samples = append(samples, Sample{
			Latitude:      lat + dlat,
			Longitude:     lon + dlon,
			OffsetSeconds: int(t),
		})
	}
	return samples
}

// ETAToPoint estimates seconds to reach the target at current ground speed,
// using the flat 1° ≈ 60 NM approximation. Returns ok=false when the track
// is not moving.
func ETAToPoint(lat, lon, targetLat, targetLon, speedKt float64) (seconds float64, ok bool) {
	if speedKt <= 0 {
		return 0, false
	}
	distDeg := math.Hypot(targetLat-lat, targetLon-lon)
	distNM := distDeg * 60
	return distNM / speedKt * 3600, true
}
