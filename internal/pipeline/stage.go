package pipeline

// Stage is the calibration gesture currently being collected. The machine
// only ever moves through the fixed forward cycle
// Idle -> Up -> Right -> Down -> Left -> Idle; there are no other edges.
type Stage int

const (
	StageIdle Stage = iota
	StageUp
	StageRight
	StageDown
	StageLeft
)

var stageLabels = map[Stage]string{
	StageIdle:  "",
	StageUp:    "up",
	StageRight: "right",
	StageDown:  "down",
	StageLeft:  "left",
}

// Label returns the gesture label attached to samples collected in this
// stage. Idle has no label.
func (s Stage) Label() string {
	return stageLabels[s]
}

func (s Stage) String() string {
	switch s {
	case StageIdle:
		return "idle"
	case StageUp:
		return "up"
	case StageRight:
		return "right"
	case StageDown:
		return "down"
	case StageLeft:
		return "left"
	}
	return "unknown"
}

// Next returns the following stage in the fixed cycle.
func (s Stage) Next() Stage {
	switch s {
	case StageUp:
		return StageRight
	case StageRight:
		return StageDown
	case StageDown:
		return StageLeft
	case StageLeft:
		return StageIdle
	default:
		return StageIdle
	}
}

// StageFromLabel maps a gesture label back to its stage. Unknown labels
// map to Idle.
func StageFromLabel(label string) Stage {
	for st, l := range stageLabels {
		if l == label && l != "" {
			return st
		}
	}
	return StageIdle
}
