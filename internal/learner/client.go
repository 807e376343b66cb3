// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package learner

import (
	"encoding/json"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/relabs-tech/motion_trainer/internal/config"
)

// Receiver is the inbound half of the learner integration: the
// pipeline implements it and gets prediction/session results delivered
// from the MQTT callback goroutine.
type Receiver interface {
	HandlePrediction(label *string)
	HandleIdentifier(id string)
}

// Controller is implemented by the pipeline for remote control
// messages.
type Controller interface {
	StartCalibration()
	StopCalibration()
	SetThreshold(v float64)
}

// Client implements the outbound trainer commands over MQTT. Every
// send is fire-and-forget: Publish is asynchronous and delivery errors
// are only logged.
type Client struct {
	log  *zap.Logger
	cfg  *config.Config
	mqtt mqtt.Client
}

// NewClient wraps an already-connected MQTT client.
func NewClient(m mqtt.Client, cfg *config.Config, log *zap.Logger) *Client {
	return &Client{log: log, cfg: cfg, mqtt: m}
}

// SendLabeledSample ships a calibration vector tagged with its gesture
// label.
func (c *Client) SendLabeledSample(vector []float64, label string) {
	c.publishJSON(c.cfg.TopicLabeledSample, SamplePayload{
		ID:     uuid.NewString(),
		Vector: vector,
		Label:  label,
		Time:   time.Now(),
	})
}

// SendUnlabeledSample ships an event vector for classification.
func (c *Client) SendUnlabeledSample(vector []float64) {
	c.publishJSON(c.cfg.TopicUnlabeledSample, SamplePayload{
		ID:     uuid.NewString(),
		Vector: vector,
		Time:   time.Now(),
	})
}

// RequestNewIdentifier asks the learner service for a session DSID.
func (c *Client) RequestNewIdentifier() {
	c.publishJSON(c.cfg.TopicSessionRequest, RequestPayload{ID: uuid.NewString(), Time: time.Now()})
}

// RequestTraining asks the learner to train on the collected samples.
func (c *Client) RequestTraining() {
	c.publishJSON(c.cfg.TopicTrainRequest, RequestPayload{ID: uuid.NewString(), Time: time.Now()})
}

func (c *Client) publishJSON(topic string, v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		c.log.Error("[learner] json marshal error", zap.String("topic", topic), zap.Error(err))
		return
	}

	token := c.mqtt.Publish(topic, 0, false, payload)
	go func() {
		if token.Wait(); token.Error() != nil {
			c.log.Warn("[learner] publish error",
				zap.String("topic", topic), zap.Error(token.Error()))
		}
	}()
}

// SubscribeResults routes prediction and session messages to the
// receiver. Malformed payloads are logged and dropped, same as a
// missing label.
func (c *Client) SubscribeResults(rcv Receiver) error {
	token := c.mqtt.Subscribe(c.cfg.TopicPrediction, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var p PredictionPayload
		if err := json.Unmarshal(msg.Payload(), &p); err != nil {
			c.log.Warn("[learner] prediction unmarshal error", zap.Error(err))
			return
		}
		rcv.HandlePrediction(p.Label)
	})
	if token.Wait(); token.Error() != nil {
		return token.Error()
	}

	token = c.mqtt.Subscribe(c.cfg.TopicSession, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var p SessionPayload
		if err := json.Unmarshal(msg.Payload(), &p); err != nil {
			c.log.Warn("[learner] session unmarshal error", zap.Error(err))
			return
		}
		rcv.HandleIdentifier(p.DSID)
	})
	if token.Wait(); token.Error() != nil {
		return token.Error()
	}

	c.log.Info("[learner] subscribed to results",
		zap.String("prediction", c.cfg.TopicPrediction),
		zap.String("session", c.cfg.TopicSession))
	return nil
}

// SubscribeControl routes remote control messages to the pipeline.
func (c *Client) SubscribeControl(ctrl Controller) error {
	token := c.mqtt.Subscribe(c.cfg.TopicControl, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var p ControlPayload
		if err := json.Unmarshal(msg.Payload(), &p); err != nil {
			c.log.Warn("[learner] control unmarshal error", zap.Error(err))
			return
		}

		switch p.Action {
		case ActionStartCalibration:
			ctrl.StartCalibration()
		case ActionStopCalibration:
			ctrl.StopCalibration()
		case ActionSetThreshold:
			if p.Threshold == nil {
				c.log.Warn("[learner] set_threshold without threshold value")
				return
			}
			ctrl.SetThreshold(*p.Threshold)
		default:
			c.log.Warn("[learner] unknown control action", zap.String("action", p.Action))
		}
	})
	if token.Wait(); token.Error() != nil {
		return token.Error()
	}
	return nil
}

// Connect dials the broker and returns the shared MQTT client.
func Connect(broker, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return client, nil
}
