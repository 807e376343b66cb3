package learner

import "time"

// SamplePayload is the JSON body published for both labeled and
// unlabeled sample vectors. The vector is sample-major (x,y,z per
// sample, oldest first) — a stable contract with the learner service.
type SamplePayload struct {
	ID     string    `json:"id"`
	Vector []float64 `json:"vector"`
	Label  string    `json:"label,omitempty"`
	Time   time.Time `json:"time"`
}

// RequestPayload is the body of training and session requests.
type RequestPayload struct {
	ID   string    `json:"id"`
	Time time.Time `json:"time"`
}

// PredictionPayload is the learner's asynchronous classification
// result. A null label means the learner could not classify the event.
type PredictionPayload struct {
	Label *string `json:"label"`
}

// SessionPayload carries the opaque dataset/session identifier (DSID)
// issued by the learner service.
type SessionPayload struct {
	DSID string `json:"dsid"`
}

// MagnitudePayload is the per-sample magnitude report for displays.
type MagnitudePayload struct {
	Value float64 `json:"value"`
}

// StagePayload announces a calibration stage transition. Stage is the
// lowercase stage name; Label is the gesture label ("" for idle).
type StagePayload struct {
	Stage       string `json:"stage"`
	Label       string `json:"label"`
	Calibrating bool   `json:"calibrating"`
}

// LabelPayload is a delivered prediction for displays.
type LabelPayload struct {
	Label string `json:"label"`
}

// ControlPayload drives the trainer remotely (web UI or any MQTT
// client). Action is one of start_calibration, stop_calibration,
// set_threshold.
type ControlPayload struct {
	Action    string   `json:"action"`
	Threshold *float64 `json:"threshold,omitempty"`
}

// Control actions.
const (
	ActionStartCalibration = "start_calibration"
	ActionStopCalibration  = "stop_calibration"
	ActionSetThreshold     = "set_threshold"
)
