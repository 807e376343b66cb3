package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/relabs-tech/motion_trainer/internal/motion"
)

type sentSample struct {
	vector []float64
	label  string
}

type fakeTrainer struct {
	mu        sync.Mutex
	labeled   []sentSample
	unlabeled [][]float64
	idReqs    int
	trainReqs int
}

func (f *fakeTrainer) SendLabeledSample(vector []float64, label string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.labeled = append(f.labeled, sentSample{vector: vector, label: label})
}

func (f *fakeTrainer) SendUnlabeledSample(vector []float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unlabeled = append(f.unlabeled, vector)
}

func (f *fakeTrainer) RequestNewIdentifier() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.idReqs++
}

func (f *fakeTrainer) RequestTraining() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trainReqs++
}

func (f *fakeTrainer) unlabeledCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.unlabeled)
}

func (f *fakeTrainer) labeledCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.labeled)
}

type fakePresenter struct {
	mu     sync.Mutex
	mags   []float64
	stages []Stage
	labels []string
	ids    []string
}

func (f *fakePresenter) ReportMagnitude(v float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mags = append(f.mags, v)
}

func (f *fakePresenter) ReportStageChange(st Stage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stages = append(f.stages, st)
}

func (f *fakePresenter) DisplayLabel(label string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.labels = append(f.labels, label)
}

func (f *fakePresenter) DisplayIdentifier(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, id)
}

func (f *fakePresenter) lastStage() (Stage, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.stages) == 0 {
		return StageIdle, false
	}
	return f.stages[len(f.stages)-1], true
}

type archivedEvent struct {
	vector      []float64
	label       string
	calibrating bool
}

type fakeArchive struct {
	mu     sync.Mutex
	events []archivedEvent
}

func (f *fakeArchive) RecordEvent(vector []float64, label string, calibrating bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, archivedEvent{vector: vector, label: label, calibrating: calibrating})
	return nil
}

// scheduledTimer records a call to the pipeline's afterFunc seam.
type scheduledTimer struct {
	delay time.Duration
	fn    func()
}

// newTestPipeline builds a pipeline whose timers never fire on their
// own; the test inspects and invokes them explicitly.
func newTestPipeline(opts Options) (*Pipeline, *fakeTrainer, *fakePresenter, *fakeArchive, *[]scheduledTimer) {
	trainer := &fakeTrainer{}
	presenter := &fakePresenter{}
	archive := &fakeArchive{}
	timers := &[]scheduledTimer{}

	p := New(opts, trainer, presenter, archive, zap.NewNop())
	p.afterFunc = func(d time.Duration, fn func()) *time.Timer {
		*timers = append(*timers, scheduledTimer{delay: d, fn: fn})
		t := time.NewTimer(time.Hour)
		t.Stop()
		return t
	}
	return p, trainer, presenter, archive, timers
}

func defaultOpts() Options {
	return Options{
		BufferCapacity:   200,
		Threshold:        0.2,
		SettleDelay:      50 * time.Millisecond,
		InferenceQuiet:   2 * time.Second,
		CalibrationQuiet: time.Second,
	}
}

func TestStageCycleIsFixedForward(t *testing.T) {
	assert.Equal(t, StageRight, StageUp.Next())
	assert.Equal(t, StageDown, StageRight.Next())
	assert.Equal(t, StageLeft, StageDown.Next())
	assert.Equal(t, StageIdle, StageLeft.Next())
	assert.Equal(t, StageIdle, StageIdle.Next())
}

func TestStageLabels(t *testing.T) {
	assert.Equal(t, "", StageIdle.Label())
	assert.Equal(t, "up", StageUp.Label())
	assert.Equal(t, "left", StageLeft.Label())
	assert.Equal(t, StageDown, StageFromLabel("down"))
	assert.Equal(t, StageIdle, StageFromLabel("sideways"))
}

// Scenario: threshold 0.2, quiet samples then one spike. The event is
// scheduled once, trailing samples keep appending during the settle
// window, and the handed-off vector includes them.
func TestDetectorSettleWindowCapturesTrailingContext(t *testing.T) {
	p, trainer, presenter, _, timers := newTestPipeline(defaultOpts())
	p.waiting = true

	for i := 0; i < 150; i++ {
		p.handleSample(motion.Sample{X: 0.05})
	}
	require.Empty(t, *timers, "no event below threshold")

	p.handleSample(motion.Sample{X: 0.3})
	require.Len(t, *timers, 1, "one event scheduled at the crossing")
	assert.Equal(t, 50*time.Millisecond, (*timers)[0].delay)

	// Trailing samples arrive while the settle delay is pending.
	for i := 0; i < 10; i++ {
		p.handleSample(motion.Sample{X: 0.01})
	}

	p.handleEvent()
	require.Equal(t, 1, trainer.unlabeledCount())
	assert.Len(t, trainer.unlabeled[0], 3*161, "vector covers spike plus settle window")
	assert.Len(t, presenter.mags, 161, "magnitude reported on every sample")
}

func TestAtMostOnePendingEvent(t *testing.T) {
	p, _, _, _, timers := newTestPipeline(defaultOpts())
	p.waiting = true

	p.handleSample(motion.Sample{X: 0.5})
	p.handleSample(motion.Sample{X: 0.9})
	p.handleSample(motion.Sample{Y: 0.4})
	assert.Len(t, *timers, 1, "crossings while pending are ignored")

	p.handleEvent() // consumes the event and schedules the quiet-period timer
	p.handleSample(motion.Sample{X: 0.5})
	assert.Len(t, *timers, 3, "detector schedules again after the event is consumed")
}

// Scenario: two threshold crossings 10 ms apart, settle delay 50 ms,
// debounce gate closed between them. Exactly one send occurs.
func TestTwoCrossingsOneSend(t *testing.T) {
	p, trainer, _, _, _ := newTestPipeline(defaultOpts())
	p.waiting = true

	p.handleSample(motion.Sample{X: 0.3}) // first crossing, schedules
	p.handleSample(motion.Sample{X: 0.4}) // second crossing 10ms later, ignored
	p.handleEvent()

	assert.Equal(t, 1, trainer.unlabeledCount())
	assert.False(t, p.state().WaitingForEvent, "gate closed immediately after handling")

	// A further fired event while the gate is closed is dropped.
	p.handleSample(motion.Sample{X: 0.9})
	p.handleEvent()
	assert.Equal(t, 1, trainer.unlabeledCount())
}

func TestDebounceGateStartsClosed(t *testing.T) {
	p, trainer, _, _, _ := newTestPipeline(defaultOpts())

	p.handleSample(motion.Sample{X: 0.9})
	p.handleEvent()
	assert.Zero(t, trainer.unlabeledCount(), "no send before the first re-arm")
}

func TestInferenceEventRearmsWithInferenceQuiet(t *testing.T) {
	p, _, _, _, timers := newTestPipeline(defaultOpts())
	p.waiting = true

	p.handleSample(motion.Sample{X: 0.9})
	p.handleEvent()

	require.Len(t, *timers, 2) // settle timer + re-arm timer
	assert.Equal(t, 2*time.Second, (*timers)[1].delay)
}

func TestCalibrationRoundAdvancesPerAcceptedEvent(t *testing.T) {
	p, trainer, presenter, archive, _ := newTestPipeline(defaultOpts())

	p.enterStage(StageUp)
	wantLabels := []string{"up", "right", "down", "left"}
	for _, want := range wantLabels {
		p.waiting = true // stand in for the per-stage re-arm timer
		p.handleSample(motion.Sample{X: 0.9})
		p.handleEvent()

		last := trainer.labeled[len(trainer.labeled)-1]
		assert.Equal(t, want, last.label)
	}

	st := p.state()
	assert.Equal(t, StageIdle, st.Stage)
	assert.False(t, st.Calibrating)
	assert.Equal(t, 1, trainer.trainReqs, "training requested once after the full cycle")
	assert.Equal(t, []Stage{StageUp, StageRight, StageDown, StageLeft, StageIdle}, presenter.stages)

	require.Len(t, archive.events, 4)
	for i, ev := range archive.events {
		assert.Equal(t, wantLabels[i], ev.label)
		assert.True(t, ev.calibrating)
	}
}

func TestStageEntryArmsCalibrationQuiet(t *testing.T) {
	p, _, _, _, timers := newTestPipeline(defaultOpts())

	p.enterStage(StageUp)
	require.NotEmpty(t, *timers)
	assert.Equal(t, time.Second, (*timers)[len(*timers)-1].delay)
	assert.False(t, p.state().WaitingForEvent, "gate closed at stage entry")
	assert.True(t, p.state().Calibrating)
}

func TestIdleEntryResumesInference(t *testing.T) {
	p, _, presenter, _, timers := newTestPipeline(defaultOpts())

	p.enterStage(StageDown)
	p.enterStage(StageIdle)

	st := p.state()
	assert.False(t, st.Calibrating)
	assert.Equal(t, StageIdle, st.Stage)
	assert.Equal(t, 2*time.Second, (*timers)[len(*timers)-1].delay)

	last, ok := presenter.lastStage()
	require.True(t, ok)
	assert.Equal(t, StageIdle, last, "Idle entry clears stage feedback")
}

func TestRestartAbandonsInProgressStage(t *testing.T) {
	p, _, _, _, _ := newTestPipeline(defaultOpts())

	p.enterStage(StageDown)
	p.waiting = true
	p.enterStage(StageUp) // restart mid-stage

	st := p.state()
	assert.Equal(t, StageUp, st.Stage)
	assert.True(t, st.Calibrating)
	assert.False(t, st.WaitingForEvent, "restart closes the gate until the stage quiet elapses")
}

func TestStaleRearmTokenIgnoredAfterTransition(t *testing.T) {
	p, _, _, _, timers := newTestPipeline(defaultOpts())

	p.armRearm(2 * time.Second)
	staleGen := p.rearmGen

	p.enterStage(StageUp) // cancels the pending re-arm

	p.handleRearm(staleGen)
	assert.False(t, p.state().WaitingForEvent, "token from a superseded timer must not re-open the gate")

	p.handleRearm(p.rearmGen)
	assert.True(t, p.state().WaitingForEvent)
	_ = timers
}

func TestPredictionRouting(t *testing.T) {
	p, _, presenter, _, _ := newTestPipeline(defaultOpts())

	p.HandlePrediction(nil)
	assert.Empty(t, presenter.labels, "missing label is dropped")

	empty := ""
	p.HandlePrediction(&empty)
	assert.Empty(t, presenter.labels)

	left := "left"
	p.HandlePrediction(&left)
	assert.Equal(t, []string{"left"}, presenter.labels)
}

func TestIdentifierIsRedisplayed(t *testing.T) {
	p, _, presenter, _, _ := newTestPipeline(defaultOpts())

	p.HandleIdentifier("dsid-42")
	assert.Equal(t, []string{"dsid-42"}, presenter.ids)
}

func TestUnlabeledEventArchivedWithoutLabel(t *testing.T) {
	p, _, _, archive, _ := newTestPipeline(defaultOpts())
	p.waiting = true

	p.handleSample(motion.Sample{X: 0.9})
	p.handleEvent()

	require.Len(t, archive.events, 1)
	assert.Equal(t, "", archive.events[0].label)
	assert.False(t, archive.events[0].calibrating)
}

// End-to-end over the Run loop with real (short) timers: a spike leads
// to exactly one unlabeled send, and starting calibration routes the
// next spike to a labeled send.
func TestRunLoopEndToEnd(t *testing.T) {
	trainer := &fakeTrainer{}
	presenter := &fakePresenter{}
	p := New(Options{
		BufferCapacity:   50,
		Threshold:        0.2,
		SettleDelay:      5 * time.Millisecond,
		InferenceQuiet:   20 * time.Millisecond,
		CalibrationQuiet: 20 * time.Millisecond,
	}, trainer, presenter, nil, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = p.Run(ctx)
	}()

	// Let the startup re-arm elapse, then spike.
	time.Sleep(40 * time.Millisecond)
	p.Submit(motion.Sample{X: 0.05})
	p.Submit(motion.Sample{X: 0.5})

	require.Eventually(t, func() bool { return trainer.unlabeledCount() == 1 },
		time.Second, 5*time.Millisecond)

	p.StartCalibration()
	require.Eventually(t, func() bool {
		st, ok := presenter.lastStage()
		return ok && st == StageUp
	}, time.Second, 5*time.Millisecond)

	// Wait out the stage quiet period, then spike again.
	time.Sleep(40 * time.Millisecond)
	p.Submit(motion.Sample{X: 0.6})

	require.Eventually(t, func() bool { return trainer.labeledCount() == 1 },
		time.Second, 5*time.Millisecond)

	trainer.mu.Lock()
	assert.Equal(t, "up", trainer.labeled[0].label)
	require.GreaterOrEqual(t, trainer.idReqs, 1, "identifier requested at startup")
	trainer.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("run loop did not exit on cancel")
	}
}
