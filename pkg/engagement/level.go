package engagement

// Level is a coarse label for an engagement score.
type Level string

// Engagement levels.
const (
	HighlyEngaged    Level = "Highly Engaged"
	Engaged          Level = "Engaged"
	PartiallyEngaged Level = "Partially Engaged"
	Disengaged       Level = "Disengaged"
)

// LevelFor labels score.
func LevelFor(score float64) Level {
	switch {
	case score > 80:
		return HighlyEngaged
	case score > 60:
		return Engaged
	case score > 40:
		return PartiallyEngaged
	default:
		return Disengaged
	}
}
