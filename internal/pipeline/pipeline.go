// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/relabs-tech/motion_trainer/internal/motion"
)

// Trainer is the outbound command interface to the remote learner. All
// calls are fire-and-forget: implementations must not block on a network
// round trip and the pipeline never inspects results synchronously.
type Trainer interface {
	SendLabeledSample(vector []float64, label string)
	SendUnlabeledSample(vector []float64)
	RequestNewIdentifier()
	RequestTraining()
}

// Presenter receives UI-facing notifications. ReportMagnitude is called
// for every sample, so implementations should be cheap or buffer
// internally.
type Presenter interface {
	ReportMagnitude(value float64)
	ReportStageChange(stage Stage)
	DisplayLabel(label string)
	DisplayIdentifier(id string)
}

// Archive persists accepted events locally. Optional; a nil archive
// disables persistence.
type Archive interface {
	RecordEvent(vector []float64, label string, calibrating bool) error
}

// Options holds the tuning knobs for a Pipeline.
type Options struct {
	BufferCapacity   int
	Threshold        float64       // magnitude threshold, mutable via SetThreshold
	SettleDelay      time.Duration // trailing-context window after a crossing
	InferenceQuiet   time.Duration // debounce re-arm delay in inference mode
	CalibrationQuiet time.Duration // debounce re-arm delay per calibration stage
}

// State is a snapshot of the pipeline's mode flags.
type State struct {
	Stage           Stage
	Calibrating     bool
	WaitingForEvent bool
}

// Pipeline owns the sample buffer, event detector, debounce gate and
// calibration state machine. All of them are mutated exclusively on the
// Run goroutine; external controls are marshaled onto it through the
// command channel, and timers post tokens back into it.
type Pipeline struct {
	log       *zap.Logger
	trainer   Trainer
	presenter Presenter
	archive   Archive

	buf  *motion.SampleBuffer
	opts Options

	samples  chan motion.Sample
	fired    chan struct{}
	rearm    chan uint64
	commands chan func()

	// Owned by the Run goroutine.
	threshold    float64
	eventPending bool
	waiting      bool
	stage        Stage
	calibrating  bool
	rearmTimer   *time.Timer
	rearmGen     uint64

	// afterFunc is time.AfterFunc, replaceable in tests.
	afterFunc func(time.Duration, func()) *time.Timer
}

// New creates a Pipeline. The archive may be nil.
func New(opts Options, trainer Trainer, presenter Presenter, archive Archive, log *zap.Logger) *Pipeline {
	if opts.BufferCapacity < 1 {
		opts.BufferCapacity = 1
	}
	return &Pipeline{
		log:       log,
		trainer:   trainer,
		presenter: presenter,
		archive:   archive,
		buf:       motion.NewSampleBuffer(opts.BufferCapacity),
		opts:      opts,
		threshold: opts.Threshold,
		samples:   make(chan motion.Sample, 64),
		fired:     make(chan struct{}, 1),
		rearm:     make(chan uint64, 1),
		commands:  make(chan func(), 8),
		afterFunc: time.AfterFunc,
	}
}

// Submit delivers one sensor sample to the processing goroutine.
func (p *Pipeline) Submit(s motion.Sample) {
	p.samples <- s
}

// SetThreshold updates the detector threshold from any goroutine.
func (p *Pipeline) SetThreshold(v float64) {
	p.commands <- func() {
		p.log.Info("[pipeline] threshold updated", zap.Float64("threshold", v))
		p.threshold = v
	}
}

// StartCalibration jumps to the Up stage from any state, abandoning an
// in-progress stage and cancelling any pending re-arm.
func (p *Pipeline) StartCalibration() {
	p.commands <- func() {
		p.log.Info("[pipeline] calibration started")
		p.enterStage(StageUp)
	}
}

// StopCalibration returns to Idle and resumes inference mode.
func (p *Pipeline) StopCalibration() {
	p.commands <- func() {
		p.log.Info("[pipeline] calibration stopped")
		p.enterStage(StageIdle)
	}
}

// Run processes samples, timer tokens and commands until ctx is done.
// It is the single writer for the buffer and all mode flags.
func (p *Pipeline) Run(ctx context.Context) error {
	p.trainer.RequestNewIdentifier()

	// The debounce gate starts disarmed; inference begins accepting
	// events one quiet period after startup.
	p.armRearm(p.opts.InferenceQuiet)

	for {
		select {
		case <-ctx.Done():
			p.cancelRearm()
			p.log.Info("[pipeline] shutting down")
			return ctx.Err()
		case s := <-p.samples:
			p.handleSample(s)
		case <-p.fired:
			p.handleEvent()
		case gen := <-p.rearm:
			p.handleRearm(gen)
		case cmd := <-p.commands:
			cmd()
		}
	}
}

// handleSample appends the sample, reports its magnitude, and schedules
// an event once the threshold is crossed. A crossing while an event is
// already pending is ignored so noisy bursts cannot cascade.
func (p *Pipeline) handleSample(s motion.Sample) {
	p.buf.Append(s)
	mag := s.Magnitude()
	p.presenter.ReportMagnitude(mag)

	if mag <= p.threshold || p.eventPending {
		return
	}

	p.eventPending = true
	p.afterFunc(p.opts.SettleDelay, func() {
		// fired has capacity 1 and at most one event is in flight,
		// so this never blocks.
		select {
		case p.fired <- struct{}{}:
		default:
		}
	})
}

// handleEvent finalises a settled event: route the buffered vector to
// the learner according to the current mode, or drop it silently when
// the debounce gate is closed.
func (p *Pipeline) handleEvent() {
	p.eventPending = false

	if !p.waiting {
		p.log.Debug("[pipeline] event dropped, debounce gate closed")
		return
	}
	p.waiting = false

	vec := p.buf.Vector()

	if p.calibrating && p.stage != StageIdle {
		label := p.stage.Label()
		p.trainer.SendLabeledSample(vec, label)
		p.recordEvent(vec, label, true)
		p.log.Info("[pipeline] labeled sample sent",
			zap.String("label", label), zap.Int("vector_len", len(vec)))

		next := p.stage.Next()
		p.enterStage(next)
		if next == StageIdle {
			// Full cycle collected; ask the learner to train on it.
			p.trainer.RequestTraining()
			p.log.Info("[pipeline] calibration cycle complete, training requested")
		}
		return
	}

	p.trainer.SendUnlabeledSample(vec)
	p.recordEvent(vec, "", false)
	p.log.Info("[pipeline] sample sent for prediction", zap.Int("vector_len", len(vec)))
	p.armRearm(p.opts.InferenceQuiet)
}

// handleRearm re-opens the debounce gate unless the token comes from a
// timer that was superseded by a mode or stage transition.
func (p *Pipeline) handleRearm(gen uint64) {
	if gen != p.rearmGen {
		p.log.Debug("[pipeline] stale re-arm token ignored")
		return
	}
	p.waiting = true
}

// enterStage performs a state machine transition. Entering any non-Idle
// stage enables calibration mode and arms the debouncer with the
// per-stage quiet period; entering Idle resumes inference mode. Any
// pending re-arm is cancelled so a stale timer cannot re-open the gate
// after a restart.
func (p *Pipeline) enterStage(st Stage) {
	p.stage = st
	p.calibrating = st != StageIdle
	p.waiting = false
	p.presenter.ReportStageChange(st)

	if st != StageIdle {
		p.armRearm(p.opts.CalibrationQuiet)
	} else {
		p.armRearm(p.opts.InferenceQuiet)
	}
}

// armRearm schedules the one-shot re-enable of the debounce gate. The
// generation counter invalidates tokens from timers that fired between
// a transition and their Stop call.
func (p *Pipeline) armRearm(d time.Duration) {
	p.cancelRearm()
	gen := p.rearmGen
	p.rearmTimer = p.afterFunc(d, func() {
		select {
		case p.rearm <- gen:
		default:
		}
	})
}

func (p *Pipeline) cancelRearm() {
	if p.rearmTimer != nil {
		p.rearmTimer.Stop()
		p.rearmTimer = nil
	}
	p.rearmGen++
	select {
	case <-p.rearm:
	default:
	}
}

func (p *Pipeline) recordEvent(vec []float64, label string, calibrating bool) {
	if p.archive == nil {
		return
	}
	if err := p.archive.RecordEvent(vec, label, calibrating); err != nil {
		p.log.Warn("[pipeline] failed to archive event", zap.Error(err))
	}
}

// HandlePrediction receives an asynchronous prediction result from the
// learner. A missing label is logged and dropped; it touches no pipeline
// state and is safe to call from the client's callback goroutine.
func (p *Pipeline) HandlePrediction(label *string) {
	if label == nil || *label == "" {
		p.log.Info("[pipeline] prediction without label, dropped")
		return
	}
	p.presenter.DisplayLabel(*label)
}

// HandleIdentifier receives a session identifier (DSID) update. The id
// is opaque to the pipeline; it is re-displayed and logged.
func (p *Pipeline) HandleIdentifier(id string) {
	p.log.Info("[pipeline] session identifier updated", zap.String("dsid", id))
	p.presenter.DisplayIdentifier(id)
}

// state returns the current mode flags. Only meaningful on the Run
// goroutine; tests drive the handlers directly and may call it.
func (p *Pipeline) state() State {
	return State{Stage: p.stage, Calibrating: p.calibrating, WaitingForEvent: p.waiting}
}
