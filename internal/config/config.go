package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Config holds all application configuration values.
type Config struct {
	// MQTT
	MQTTBroker          string
	MQTTClientIDTrainer string
	MQTTClientIDConsole string
	MQTTClientIDWeb     string
	MQTTClientIDDisplay string

	// Topics
	TopicMagnitude       string
	TopicStage           string
	TopicLabel           string
	TopicLabeledSample   string
	TopicUnlabeledSample string
	TopicPrediction      string
	TopicTrainRequest    string
	TopicSessionRequest  string
	TopicSession         string
	TopicControl         string

	// Pipeline tuning
	BufferCapacity     int
	MagnitudeThreshold float64
	SettleDelayMS      int
	InferenceQuietMS   int
	CalibrationQuietMS int
	SampleIntervalMS   int

	// Sensor source: "mock", "spi" or "serial"
	SensorSource string
	IMUSPIDevice string
	IMUCSPin     string
	SerialPort   string
	SerialBaud   int

	// Web server
	WebServerPort int

	// Display
	DisplayUpdateIntervalMS int

	// Local event archive (empty disables it)
	ArchiveDBPath string
}

// Package-level unexported variables for singleton access. External code
// must use InitGlobal() to set and Get() to read; the RWMutex allows
// concurrent readers once initialised.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Load reads the configuration file and returns a Config struct.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := defaultConfig()
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// defaultConfig carries the values a file may omit. Topic names follow
// the motion/* scheme shared by all four binaries.
func defaultConfig() *Config {
	return &Config{
		TopicMagnitude:       "motion/magnitude",
		TopicStage:           "motion/stage",
		TopicLabel:           "motion/label",
		TopicLabeledSample:   "motion/sample/labeled",
		TopicUnlabeledSample: "motion/sample/unlabeled",
		TopicPrediction:      "motion/prediction",
		TopicTrainRequest:    "motion/train/request",
		TopicSessionRequest:  "motion/session/request",
		TopicSession:         "motion/session",
		TopicControl:         "motion/control",

		BufferCapacity:     200,
		MagnitudeThreshold: 0.2,
		SettleDelayMS:      50,
		InferenceQuietMS:   2000,
		CalibrationQuietMS: 1000,
		SampleIntervalMS:   5, // ~200 Hz

		SensorSource:            "mock",
		WebServerPort:           8080,
		DisplayUpdateIntervalMS: 200,
	}
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	switch key {
	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_TRAINER":
		c.MQTTClientIDTrainer = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "MQTT_CLIENT_ID_WEB":
		c.MQTTClientIDWeb = value
	case "MQTT_CLIENT_ID_DISPLAY":
		c.MQTTClientIDDisplay = value

	// Topics
	case "TOPIC_MAGNITUDE":
		c.TopicMagnitude = value
	case "TOPIC_STAGE":
		c.TopicStage = value
	case "TOPIC_LABEL":
		c.TopicLabel = value
	case "TOPIC_LABELED_SAMPLE":
		c.TopicLabeledSample = value
	case "TOPIC_UNLABELED_SAMPLE":
		c.TopicUnlabeledSample = value
	case "TOPIC_PREDICTION":
		c.TopicPrediction = value
	case "TOPIC_TRAIN_REQUEST":
		c.TopicTrainRequest = value
	case "TOPIC_SESSION_REQUEST":
		c.TopicSessionRequest = value
	case "TOPIC_SESSION":
		c.TopicSession = value
	case "TOPIC_CONTROL":
		c.TopicControl = value

	// Pipeline tuning
	case "BUFFER_CAPACITY":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid BUFFER_CAPACITY %q: %w", value, err)
		}
		if n < 1 {
			return fmt.Errorf("BUFFER_CAPACITY must be >= 1, got %d", n)
		}
		c.BufferCapacity = n
	case "MAGNITUDE_THRESHOLD":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid MAGNITUDE_THRESHOLD %q: %w", value, err)
		}
		if v <= 0 {
			return fmt.Errorf("MAGNITUDE_THRESHOLD must be positive, got %g", v)
		}
		c.MagnitudeThreshold = v
	case "SETTLE_DELAY_MS":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid SETTLE_DELAY_MS %q: %w", value, err)
		}
		c.SettleDelayMS = n
	case "INFERENCE_QUIET_MS":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid INFERENCE_QUIET_MS %q: %w", value, err)
		}
		c.InferenceQuietMS = n
	case "CALIBRATION_QUIET_MS":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid CALIBRATION_QUIET_MS %q: %w", value, err)
		}
		c.CalibrationQuietMS = n
	case "SAMPLE_INTERVAL_MS":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid SAMPLE_INTERVAL_MS %q: %w", value, err)
		}
		if n < 1 {
			return fmt.Errorf("SAMPLE_INTERVAL_MS must be >= 1, got %d", n)
		}
		c.SampleIntervalMS = n

	// Sensor
	case "SENSOR_SOURCE":
		switch value {
		case "mock", "spi", "serial":
			c.SensorSource = value
		default:
			return fmt.Errorf("SENSOR_SOURCE must be mock, spi or serial, got %q", value)
		}
	case "IMU_SPI_DEVICE":
		c.IMUSPIDevice = value
	case "IMU_CS_PIN":
		c.IMUCSPin = value
	case "SERIAL_PORT":
		c.SerialPort = value
	case "SERIAL_BAUD_RATE":
		rate, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid SERIAL_BAUD_RATE %q: %w", value, err)
		}
		c.SerialBaud = rate

	// Web server
	case "WEB_SERVER_PORT":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid WEB_SERVER_PORT %q: %w", value, err)
		}
		c.WebServerPort = port

	// Display
	case "DISPLAY_UPDATE_INTERVAL_MS":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid DISPLAY_UPDATE_INTERVAL_MS %q: %w", value, err)
		}
		c.DisplayUpdateIntervalMS = n

	// Archive
	case "ARCHIVE_DB_PATH":
		c.ArchiveDBPath = value

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return nil
}

// validate checks that all required fields are set.
func (c *Config) validate() error {
	if c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required")
	}
	if c.SensorSource == "spi" && c.IMUSPIDevice == "" {
		return fmt.Errorf("IMU_SPI_DEVICE is required when SENSOR_SOURCE=spi")
	}
	if c.SensorSource == "serial" {
		if c.SerialPort == "" {
			return fmt.Errorf("SERIAL_PORT is required when SENSOR_SOURCE=serial")
		}
		if c.SerialBaud == 0 {
			return fmt.Errorf("SERIAL_BAUD_RATE is required when SENSOR_SOURCE=serial")
		}
	}
	if c.SettleDelayMS <= 0 {
		return fmt.Errorf("SETTLE_DELAY_MS must be positive")
	}
	if c.InferenceQuietMS <= 0 || c.CalibrationQuietMS <= 0 {
		return fmt.Errorf("debounce quiet periods must be positive")
	}
	return nil
}

// SettleDelay returns the settle window as a duration.
func (c *Config) SettleDelay() time.Duration {
	return time.Duration(c.SettleDelayMS) * time.Millisecond
}

// InferenceQuiet returns the inference-mode debounce delay.
func (c *Config) InferenceQuiet() time.Duration {
	return time.Duration(c.InferenceQuietMS) * time.Millisecond
}

// CalibrationQuiet returns the per-stage debounce delay.
func (c *Config) CalibrationQuiet() time.Duration {
	return time.Duration(c.CalibrationQuietMS) * time.Millisecond
}

// SampleInterval returns the sensor tick interval.
func (c *Config) SampleInterval() time.Duration {
	return time.Duration(c.SampleIntervalMS) * time.Millisecond
}

// InitGlobal initializes the global configuration from file. Uses
// sync.Once so repeated calls are harmless; only this function can set
// globalConfig.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance. InitGlobal must be
// called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
