// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"fmt"

	"go.uber.org/zap"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/devices/v3/mpu9250"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/motion_trainer/internal/motion"
)

// accelScale converts raw accelerometer counts to g for the default
// ±2g range (16384 LSB/g).
const accelScale = 1.0 / 16384.0

type spiSource struct {
	log *zap.Logger
	imu *mpu9250.MPU9250
}

// NewSPISource initializes the MPU9250 over SPI and returns a Source
// reading its accelerometer.
func NewSPISource(spiDev, csPin string, log *zap.Logger) (Source, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("IMU: periph host init: %w", err)
	}

	cs := gpioreg.ByName(csPin)
	if cs == nil {
		return nil, fmt.Errorf("IMU: CS pin %q not found", csPin)
	}

	tr, err := mpu9250.NewSpiTransport(spiDev, cs)
	if err != nil {
		return nil, fmt.Errorf("IMU: SPI transport (%s): %w", spiDev, err)
	}

	imu, err := mpu9250.New(tr)
	if err != nil {
		return nil, fmt.Errorf("IMU: device creation: %w", err)
	}

	if err := imu.Init(); err != nil {
		return nil, fmt.Errorf("IMU: initialization: %w", err)
	}

	// Self-test
	testResult, err := imu.SelfTest()
	if err != nil {
		log.Warn("[sensors] IMU self-test failed", zap.Error(err))
	} else {
		log.Info("[sensors] IMU self-test passed",
			zap.Float64("accel_dev_x", testResult.AccelDeviation.X),
			zap.Float64("accel_dev_y", testResult.AccelDeviation.Y),
			zap.Float64("accel_dev_z", testResult.AccelDeviation.Z))
	}

	// Bias calibration; a failure is survivable, readings are just
	// noisier.
	if err := imu.Calibrate(); err != nil {
		log.Warn("[sensors] IMU bias calibration failed", zap.Error(err))
	} else {
		log.Info("[sensors] IMU bias calibration complete")
	}

	return &spiSource{log: log, imu: imu}, nil
}

// Next reads one accelerometer sample from the IMU.
func (s *spiSource) Next() (motion.Sample, error) {
	ax, err := s.imu.GetAccelerationX()
	if err != nil {
		return motion.Sample{}, fmt.Errorf("IMU accel X: %w", err)
	}
	ay, err := s.imu.GetAccelerationY()
	if err != nil {
		return motion.Sample{}, fmt.Errorf("IMU accel Y: %w", err)
	}
	az, err := s.imu.GetAccelerationZ()
	if err != nil {
		return motion.Sample{}, fmt.Errorf("IMU accel Z: %w", err)
	}

	return motion.Sample{
		X: float64(ax) * accelScale,
		Y: float64(ay) * accelScale,
		Z: float64(az) * accelScale,
	}, nil
}

func (s *spiSource) Close() error {
	return nil
}
