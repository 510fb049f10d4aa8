// SPDX-FileCopyrightText: 2026 The LLHLS-ABRs authors
// SPDX-License-Identifier: MIT

package test

import (
	"sync"

	"github.com/llhls-ABRdemo/LLHLS-ABRs/internal/types"
)

// MockMedia is a scriptable media element for orchestrator tests.
type MockMedia struct {
	mu sync.Mutex

	Position      float64
	Rate          float64
	IsPaused      bool
	Buffer        types.BufferInfo
	Lat           float64
	TargetLat     float64
	RatesWritten  []float64
}

// NewMockMedia returns a playing media element at rate 1.
func NewMockMedia() *MockMedia {
	return &MockMedia{Rate: 1}
}

// CurrentTime implements abr.Media.
func (m *MockMedia) CurrentTime() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.Position
}

// PlaybackRate implements abr.Media.
func (m *MockMedia) PlaybackRate() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.Rate
}

// SetPlaybackRate implements abr.Media and records every write.
func (m *MockMedia) SetPlaybackRate(rate float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Rate = rate
	m.RatesWritten = append(m.RatesWritten, rate)
}

// Paused implements abr.Media.
func (m *MockMedia) Paused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.IsPaused
}

// Buffered implements abr.Media.
func (m *MockMedia) Buffered() types.BufferInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.Buffer
}

// Latency implements abr.Media.
func (m *MockMedia) Latency() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.Lat
}

// TargetLatency implements abr.Media.
func (m *MockMedia) TargetLatency() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.TargetLat
}

// Set applies a mutation under the lock.
func (m *MockMedia) Set(f func(*MockMedia)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f(m)
}
