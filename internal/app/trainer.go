// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/relabs-tech/motion_trainer/internal/config"
	"github.com/relabs-tech/motion_trainer/internal/learner"
	"github.com/relabs-tech/motion_trainer/internal/pipeline"
	"github.com/relabs-tech/motion_trainer/internal/sensors"
	"github.com/relabs-tech/motion_trainer/internal/store"
)

// RunTrainer is the device-side process: it reads accelerometer
// samples, feeds them through the gesture pipeline and talks to the
// learner service over MQTT.
func RunTrainer() error {
	log, err := zap.NewDevelopment()
	if err != nil {
		return err
	}
	defer log.Sync()

	cfg := config.Get()
	log.Info("[trainer] starting motion trainer",
		zap.String("broker", cfg.MQTTBroker),
		zap.String("sensor", cfg.SensorSource))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- sensor source ---
	src, err := sensors.New(cfg, log)
	if err != nil {
		log.Error("[trainer] sensor init error", zap.Error(err))
		return err
	}
	defer src.Close()

	// --- local event archive (optional) ---
	var archive pipeline.Archive
	if cfg.ArchiveDBPath != "" {
		st, err := store.Open(cfg.ArchiveDBPath)
		if err != nil {
			log.Error("[trainer] archive open error", zap.Error(err))
			return err
		}
		defer st.Close()
		archive = st
		log.Info("[trainer] event archive enabled", zap.String("path", cfg.ArchiveDBPath))
	}

	// --- connect to MQTT ---
	client, err := learner.Connect(cfg.MQTTBroker, cfg.MQTTClientIDTrainer)
	if err != nil {
		log.Error("[trainer] MQTT connect error", zap.Error(err))
		return err
	}
	defer client.Disconnect(250)
	log.Info("[trainer] connected to MQTT broker")

	trainer := learner.NewClient(client, cfg, log)
	presenter := learner.NewPresenter(client, cfg, log)

	pl := pipeline.New(pipeline.Options{
		BufferCapacity:   cfg.BufferCapacity,
		Threshold:        cfg.MagnitudeThreshold,
		SettleDelay:      cfg.SettleDelay(),
		InferenceQuiet:   cfg.InferenceQuiet(),
		CalibrationQuiet: cfg.CalibrationQuiet(),
	}, trainer, presenter, archive, log)

	if err := trainer.SubscribeResults(pl); err != nil {
		log.Error("[trainer] results subscribe error", zap.Error(err))
		return err
	}
	if err := trainer.SubscribeControl(pl); err != nil {
		log.Error("[trainer] control subscribe error", zap.Error(err))
		return err
	}

	runErr := make(chan error, 1)
	go func() { runErr <- pl.Run(ctx) }()

	// main tick
	ticker := time.NewTicker(cfg.SampleInterval())
	defer ticker.Stop()

	log.Info("[trainer] starting sample loop",
		zap.Duration("interval", cfg.SampleInterval()))

	for {
		select {
		case <-ctx.Done():
			log.Info("[trainer] shutting down")
			if err := <-runErr; err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		case <-ticker.C:
			sample, err := src.Next()
			if err != nil {
				log.Warn("[trainer] sensor read error", zap.Error(err))
				continue
			}
			pl.Submit(sample)
		}
	}
}
