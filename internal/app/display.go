package app

import (
	"encoding/json"
	"fmt"
	"image"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/motion_trainer/internal/config"
	"github.com/relabs-tech/motion_trainer/internal/learner"
)

// displayData holds the latest values shown on the OLED.
type displayData struct {
	mu sync.RWMutex

	magnitude     float64
	haveMagnitude bool

	stage       string
	calibrating bool
	haveStage   bool

	label     string
	haveLabel bool
}

// RunDisplay drives a 128x64 SSD1306 OLED showing the live magnitude,
// the calibration stage and the last predicted gesture.
func RunDisplay() error {
	log, err := zap.NewDevelopment()
	if err != nil {
		return err
	}
	defer log.Sync()

	cfg := config.Get()

	// Initialize periph
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize periph: %w", err)
	}

	// Open I2C bus
	bus, err := i2creg.Open("")
	if err != nil {
		return fmt.Errorf("failed to open I2C bus: %w", err)
	}
	defer bus.Close()

	dev, err := ssd1306.NewI2C(bus, &ssd1306.DefaultOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize display: %w", err)
	}
	log.Info("[display] display initialized")

	if err := showSplash(dev); err != nil {
		log.Warn("[display] splash error", zap.Error(err))
	}

	data := &displayData{}

	// Connect to MQTT
	client, err := learner.Connect(cfg.MQTTBroker, cfg.MQTTClientIDDisplay)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)
	log.Info("[display] connected to MQTT broker", zap.String("broker", cfg.MQTTBroker))

	// Subscribe to magnitude
	magToken := client.Subscribe(cfg.TopicMagnitude, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var m learner.MagnitudePayload
		if err := json.Unmarshal(msg.Payload(), &m); err != nil {
			log.Warn("[display] magnitude unmarshal error", zap.Error(err))
			return
		}
		data.mu.Lock()
		data.magnitude = m.Value
		data.haveMagnitude = true
		data.mu.Unlock()
	})
	magToken.Wait()
	if magToken.Error() != nil {
		return magToken.Error()
	}

	// Subscribe to stage
	stageToken := client.Subscribe(cfg.TopicStage, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var s learner.StagePayload
		if err := json.Unmarshal(msg.Payload(), &s); err != nil {
			log.Warn("[display] stage unmarshal error", zap.Error(err))
			return
		}
		data.mu.Lock()
		data.stage = s.Stage
		data.calibrating = s.Calibrating
		data.haveStage = true
		data.mu.Unlock()
	})
	stageToken.Wait()
	if stageToken.Error() != nil {
		return stageToken.Error()
	}

	// Subscribe to predicted labels
	labelToken := client.Subscribe(cfg.TopicLabel, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var l learner.LabelPayload
		if err := json.Unmarshal(msg.Payload(), &l); err != nil {
			log.Warn("[display] label unmarshal error", zap.Error(err))
			return
		}
		data.mu.Lock()
		data.label = l.Label
		data.haveLabel = true
		data.mu.Unlock()
	})
	labelToken.Wait()
	if labelToken.Error() != nil {
		return labelToken.Error()
	}

	// Display update loop
	ticker := time.NewTicker(time.Duration(cfg.DisplayUpdateIntervalMS) * time.Millisecond)
	defer ticker.Stop()

	log.Info("[display] starting update loop")

	for range ticker.C {
		data.mu.RLock()
		snapshot := displayData{
			magnitude:     data.magnitude,
			haveMagnitude: data.haveMagnitude,
			stage:         data.stage,
			calibrating:   data.calibrating,
			haveStage:     data.haveStage,
			label:         data.label,
			haveLabel:     data.haveLabel,
		}
		data.mu.RUnlock()

		if err := updateDisplay(dev, &snapshot); err != nil {
			log.Warn("[display] update error", zap.Error(err))
		}
	}

	return nil
}

func blankImage() *image1bit.VerticalLSB {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, 128, 64))
	for i := 0; i < 1024; i++ {
		img.Pix[i] = 0
	}
	return img
}

func newDrawer(img *image1bit.VerticalLSB) *font.Drawer {
	return &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}
}

func updateDisplay(dev *ssd1306.Dev, data *displayData) error {
	img := blankImage()
	drawer := newDrawer(img)

	if !data.haveMagnitude && !data.haveStage {
		drawer.Dot = fixed.P(0, 26)
		drawer.DrawBytes([]byte("Motion Trainer"))
		drawer.Dot = fixed.P(0, 39)
		drawer.DrawBytes([]byte("Waiting..."))
		return dev.Draw(dev.Bounds(), img, image.Point{})
	}

	// Magnitude
	drawer.Dot = fixed.P(0, 13)
	drawer.DrawBytes([]byte(fmt.Sprintf("|a| %7.4f", data.magnitude)))

	// Mode and stage
	drawer.Dot = fixed.P(0, 26)
	if data.calibrating {
		drawer.DrawBytes([]byte(fmt.Sprintf("CAL: %s", data.stage)))
	} else {
		drawer.DrawBytes([]byte("Inference"))
	}

	// Last prediction
	drawer.Dot = fixed.P(0, 39)
	if data.haveLabel {
		drawer.DrawBytes([]byte(fmt.Sprintf("Last: %s", data.label)))
	} else {
		drawer.DrawBytes([]byte("Last: -"))
	}

	return dev.Draw(dev.Bounds(), img, image.Point{})
}

func showSplash(dev *ssd1306.Dev) error {
	img := blankImage()
	drawer := newDrawer(img)

	drawer.Dot = fixed.P(10, 26)
	drawer.DrawBytes([]byte("Motion"))

	drawer.Dot = fixed.P(10, 43)
	drawer.DrawBytes([]byte("Trainer"))

	return dev.Draw(dev.Bounds(), img, image.Point{})
}
