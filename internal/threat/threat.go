// Package threat computes a weighted, explainable threat score for a single
// telemetry evaluation. The function is pure: identical inputs always produce
// identical outputs, which the alert deduper relies on.
package threat

import (
	"fmt"

	"github.com/banshee-data/airspace.report/internal/classify"
)

// Signal point weights. The total is clamped to [0, 100].
const (
	PointsZoneIntrusion = 40
	PointsNoTransponder = 25
	PointsHighSpeed     = 15
	PointsMilitaryClass = 10
	PointsLowAltitude   = 10
)

// DefaultHighSpeedThresholdKt is the speed above which the high-speed signal
// fires. Operator-configurable; the original sources disagree between 400 and
// 500 kt, 400 is the fixed default.
const DefaultHighSpeedThresholdKt = 400.0

// Altitude below which an intruding track earns the low-altitude signal.
const lowAltitudeFt = 5000.0

// Level is the threat category derived from the score.
type Level string

const (
	Low      Level = "Low"
	Medium   Level = "Medium"
	High     Level = "High"
	Critical Level = "Critical"
)

// Reason is one contributing signal with its point value, so callers can
// verify that the reasons sum to the score.
type Reason struct {
	Text   string `json:"text"`
	Points int    `json:"points"`
}

// Input carries the signals the analyzer combines.
type Input struct {
	InRestrictedArea bool
	HasTransponder   bool
	Classification   classify.Category
	GroundspeedKt    float64
	AltitudeFt       float64

	// HighSpeedThresholdKt overrides the default when positive.
	HighSpeedThresholdKt float64
}

// Assessment is the analyzer output.
type Assessment struct {
	Score             int      `json:"score"`
	Level             Level    `json:"level"`
	Reasons           []Reason `json:"reasons"`
	RecommendedAction string   `json:"recommended_action"`
}

// ReasonTexts returns just the reason strings, in contribution order.
func (a Assessment) ReasonTexts() []string {
	texts := make([]string, len(a.Reasons))
	for i, r := range a.Reasons {
		texts[i] = r.Text
	}
	return texts
}

// Assess computes the weighted score, its category, and the contributing
// reasons.
func Assess(in Input) Assessment {
	threshold := in.HighSpeedThresholdKt
	if threshold <= 0 {
		threshold = DefaultHighSpeedThresholdKt
	}

	score := 0
	var reasons []Reason
	add := func(points int, text string) {
		score += points
		reasons = append(reasons, Reason{Text: text, Points: points})
	}

	if in.InRestrictedArea {
		add(PointsZoneIntrusion, "Inside restricted zone")
	}
	if !in.HasTransponder {
		add(PointsNoTransponder, "No transponder signal")
	}
	if in.GroundspeedKt > threshold {
		add(PointsHighSpeed, fmt.Sprintf("High speed (%.0f kt)", in.GroundspeedKt))
	}
	if in.Classification.IsMilitary() {
		add(PointsMilitaryClass, "Military aircraft type")
	}
	if in.InRestrictedArea && in.AltitudeFt < lowAltitudeFt {
		add(PointsLowAltitude, "Low altitude in zone")
	}

	if score > 100 {
		score = 100
	}

	level := levelFor(score)
	return Assessment{
		Score:             score,
		Level:             level,
		Reasons:           reasons,
		RecommendedAction: actionFor(level),
	}
}

func levelFor(score int) Level {
	switch {
	case score >= 70:
		return Critical
	case score >= 50:
		return High
	case score >= 25:
		return Medium
	default:
		return Low
	}
}

// actionFor is the fixed category → recommended action table.
func actionFor(level Level) string {
	switch level {
	case Critical:
		return "activate response protocol"
	case High:
		return "monitor and contact via radio"
	case Medium:
		return "maintain watch"
	default:
		return "no action required"
	}
}
