package learner

import (
	"encoding/json"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/relabs-tech/motion_trainer/internal/config"
	"github.com/relabs-tech/motion_trainer/internal/pipeline"
)

// Presenter publishes pipeline notifications on the presentation
// topics. Console, web and display binaries subscribe to them; the
// pipeline itself never talks to a UI directly.
type Presenter struct {
	log  *zap.Logger
	cfg  *config.Config
	mqtt mqtt.Client
}

// NewPresenter wraps an already-connected MQTT client.
func NewPresenter(m mqtt.Client, cfg *config.Config, log *zap.Logger) *Presenter {
	return &Presenter{log: log, cfg: cfg, mqtt: m}
}

// ReportMagnitude publishes the per-sample magnitude. Called at the
// sample rate, so errors are ignored; QoS 0 and retained so late
// subscribers get the latest value.
func (p *Presenter) ReportMagnitude(value float64) {
	payload, err := json.Marshal(MagnitudePayload{Value: value})
	if err != nil {
		return
	}
	p.mqtt.Publish(p.cfg.TopicMagnitude, 0, true, payload)
}

// ReportStageChange publishes a calibration transition.
func (p *Presenter) ReportStageChange(stage pipeline.Stage) {
	payload, err := json.Marshal(StagePayload{
		Stage:       stage.String(),
		Label:       stage.Label(),
		Calibrating: stage != pipeline.StageIdle,
	})
	if err != nil {
		p.log.Error("[presenter] stage marshal error", zap.Error(err))
		return
	}
	if token := p.mqtt.Publish(p.cfg.TopicStage, 0, true, payload); token.Wait() && token.Error() != nil {
		p.log.Warn("[presenter] stage publish error", zap.Error(token.Error()))
	}
}

// DisplayLabel publishes a delivered prediction label.
func (p *Presenter) DisplayLabel(label string) {
	payload, err := json.Marshal(LabelPayload{Label: label})
	if err != nil {
		p.log.Error("[presenter] label marshal error", zap.Error(err))
		return
	}
	if token := p.mqtt.Publish(p.cfg.TopicLabel, 0, true, payload); token.Wait() && token.Error() != nil {
		p.log.Warn("[presenter] label publish error", zap.Error(token.Error()))
	}
}

// DisplayIdentifier republishes the current session DSID.
func (p *Presenter) DisplayIdentifier(id string) {
	payload, err := json.Marshal(SessionPayload{DSID: id})
	if err != nil {
		return
	}
	p.mqtt.Publish(p.cfg.TopicSession+"/current", 0, true, payload)
}
