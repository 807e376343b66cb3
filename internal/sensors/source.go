package sensors

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/relabs-tech/motion_trainer/internal/config"
	"github.com/relabs-tech/motion_trainer/internal/motion"
)

// Source is anything that can provide accelerometer samples over time:
// the SPI-attached IMU, a serial-attached microcontroller, or the mock
// generator used off-device.
type Source interface {
	Next() (motion.Sample, error)
	Close() error
}

// New builds the sample source selected by SENSOR_SOURCE.
func New(cfg *config.Config, log *zap.Logger) (Source, error) {
	switch cfg.SensorSource {
	case "mock":
		return NewMockSource(), nil
	case "spi":
		return NewSPISource(cfg.IMUSPIDevice, cfg.IMUCSPin, log)
	case "serial":
		return NewSerialSource(cfg.SerialPort, cfg.SerialBaud, log)
	default:
		return nil, fmt.Errorf("unknown sensor source %q", cfg.SensorSource)
	}
}
