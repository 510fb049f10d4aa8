// SPDX-FileCopyrightText: 2026 The LLHLS-ABRs authors
// SPDX-License-Identifier: MIT

package abr

import "time"

// Ticker abstracts time.Ticker so tests can drive the abandonment watchdog
// deterministically.
type Ticker interface {
	Ch() <-chan time.Time
	Stop()
}

// TickerFactory creates new tickers.
type TickerFactory func(d time.Duration) Ticker

type timeTicker struct {
	*time.Ticker
}

func (t *timeTicker) Ch() <-chan time.Time {
	return t.C
}

func newTimeTicker(d time.Duration) Ticker {
	return &timeTicker{time.NewTicker(d)}
}
