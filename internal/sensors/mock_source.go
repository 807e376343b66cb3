// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"math"
	"time"

	"github.com/relabs-tech/motion_trainer/internal/motion"
)

type mockSource struct {
	start time.Time
}

// NewMockSource creates a mock sample source: low-level jitter with a
// short motion burst every few seconds, enough to exercise the event
// detector without hardware.
func NewMockSource() Source {
	return &mockSource{start: time.Now()}
}

func (m *mockSource) Next() (motion.Sample, error) {
	elapsed := time.Since(m.start).Seconds()

	// Baseline jitter well below any sensible threshold.
	x := 0.02 * math.Sin(elapsed*13)
	y := 0.02 * math.Cos(elapsed*17)
	z := 0.02 * math.Sin(elapsed*7)

	// One ~300ms burst every 5 seconds.
	phase := math.Mod(elapsed, 5.0)
	if phase < 0.3 {
		x += 0.8 * math.Sin(phase/0.3*math.Pi)
	}

	return motion.Sample{X: x, Y: y, Z: z}, nil
}

func (m *mockSource) Close() error {
	return nil
}
