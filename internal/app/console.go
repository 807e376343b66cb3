package app

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/relabs-tech/motion_trainer/internal/config"
	"github.com/relabs-tech/motion_trainer/internal/learner"
)

// RunConsole subscribes to the trainer's topics and prints everything
// it sees. Handy for watching a calibration round from a terminal.
func RunConsole() error {
	log, err := zap.NewDevelopment()
	if err != nil {
		return err
	}
	defer log.Sync()

	cfg := config.Get()

	client, err := learner.Connect(cfg.MQTTBroker, cfg.MQTTClientIDConsole)
	if err != nil {
		return err
	}
	log.Info("[console] connected to MQTT broker", zap.String("broker", cfg.MQTTBroker))

	// Subscribe to magnitude
	magToken := client.Subscribe(cfg.TopicMagnitude, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var m learner.MagnitudePayload
		if err := json.Unmarshal(msg.Payload(), &m); err != nil {
			log.Warn("[console] magnitude unmarshal error", zap.Error(err))
			return
		}
		fmt.Printf("[MAG  ] %7.4f\n", m.Value)
	})
	magToken.Wait()
	if magToken.Error() != nil {
		return magToken.Error()
	}
	log.Info("[console] subscribed", zap.String("topic", cfg.TopicMagnitude))

	// Subscribe to stage transitions
	stageToken := client.Subscribe(cfg.TopicStage, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var s learner.StagePayload
		if err := json.Unmarshal(msg.Payload(), &s); err != nil {
			log.Warn("[console] stage unmarshal error", zap.Error(err))
			return
		}
		mode := "inference"
		if s.Calibrating {
			mode = "calibration"
		}
		fmt.Printf("[STAGE] %-6s mode=%s\n", s.Stage, mode)
	})
	stageToken.Wait()
	if stageToken.Error() != nil {
		return stageToken.Error()
	}
	log.Info("[console] subscribed", zap.String("topic", cfg.TopicStage))

	// Subscribe to predicted labels
	labelToken := client.Subscribe(cfg.TopicLabel, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var l learner.LabelPayload
		if err := json.Unmarshal(msg.Payload(), &l); err != nil {
			log.Warn("[console] label unmarshal error", zap.Error(err))
			return
		}
		fmt.Printf("[LABEL] %s\n", l.Label)
	})
	labelToken.Wait()
	if labelToken.Error() != nil {
		return labelToken.Error()
	}
	log.Info("[console] subscribed", zap.String("topic", cfg.TopicLabel))

	// Subscribe to session identifier updates
	sessionToken := client.Subscribe(cfg.TopicSession+"/current", 0, func(_ mqtt.Client, msg mqtt.Message) {
		var s learner.SessionPayload
		if err := json.Unmarshal(msg.Payload(), &s); err != nil {
			log.Warn("[console] session unmarshal error", zap.Error(err))
			return
		}
		fmt.Printf("[DSID ] %s\n", s.DSID)
	})
	sessionToken.Wait()
	if sessionToken.Error() != nil {
		return sessionToken.Error()
	}
	log.Info("[console] subscribed", zap.String("topic", cfg.TopicSession+"/current"))

	// Wait for Ctrl+C
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("[console] shutting down")
	client.Disconnect(250)
	return nil
}
