package risk

type Level string

const (
	LevelLow    Level = "Low"
	LevelMedium Level = "Medium"
	LevelHigh   Level = "High"
)

const maxScore = 100

// Score sums finding weights, capped at 100, and maps the total to an overall level.
// It never changes the severity of an individual finding.
func Score(findings []Finding) (int, Level) {
	total := 0
	for _, f := range findings {
		total += f.Weight
		if total >= maxScore {
			total = maxScore
			break
		}
	}
	switch {
	case total >= 70:
		return total, LevelHigh
	case total >= 40:
		return total, LevelMedium
	default:
		return total, LevelLow
	}
}
