package main

import (
	"fmt"
	"sync/atomic"
	"time"
)

const (
	progressUpdateInterval = 100 * time.Millisecond
	clearLineSequence      = "\r\033[K"
)

// ProgressPrinter displays a single updating progress line with elapsed or
// remaining time. Single-use: Start at most once, Stop exactly once.
type ProgressPrinter struct {
	prefix    string
	phase     atomic.Value // string
	startTime time.Time
	ticker    atomic.Pointer[time.Ticker]
	stopChan  chan struct{}
	done      chan struct{}
	started   atomic.Bool
	duration  time.Duration // >0 enables countdown mode
}

// NewProgressPrinter creates a progress printer that shows elapsed time.
func NewProgressPrinter(prefix, phase string) *ProgressPrinter {
	p := &ProgressPrinter{prefix: prefix}
	p.phase.Store(phase)
	return p
}

// NewCountdownProgressPrinter creates a progress printer that counts down
// from the duration.
func NewCountdownProgressPrinter(prefix, phase string, duration time.Duration) *ProgressPrinter {
	p := &ProgressPrinter{prefix: prefix, duration: duration}
	p.phase.Store(phase)
	return p
}

// SetPhase updates the phase label. Safe from any goroutine.
func (p *ProgressPrinter) SetPhase(phase string) {
	p.phase.Store(phase)
}

// Start begins displaying progress updates in a background goroutine.
func (p *ProgressPrinter) Start() {
	if !p.started.CompareAndSwap(false, true) {
		panic("ProgressPrinter.Start called more than once")
	}

	p.done = make(chan struct{})
	p.stopChan = make(chan struct{})
	p.startTime = time.Now()
	ticker := time.NewTicker(progressUpdateInterval)
	p.ticker.Store(ticker)

	fmt.Printf("\r%s (%s...)   ", p.prefix, p.phase.Load().(string))

	go func() {
		defer close(p.done)
		for {
			select {
			case <-p.stopChan:
				return
			case <-ticker.C:
				phase := p.phase.Load().(string)
				elapsed := time.Since(p.startTime)

				var seconds int
				if p.duration > 0 {
					if remaining := p.duration - elapsed; remaining > 0 {
						seconds = int(remaining.Seconds() + 0.5)
					}
				} else {
					seconds = int(elapsed.Seconds())
				}

				if seconds > 0 {
					fmt.Printf("\r%s (%s %ds)   ", p.prefix, phase, seconds)
				} else {
					fmt.Printf("\r%s (%s...)   ", p.prefix, phase)
				}
			}
		}
	}()
}

// Stop stops the progress display and clears the line. Safe to call multiple
// times and from multiple goroutines.
func (p *ProgressPrinter) Stop() {
	ticker := p.ticker.Swap(nil)
	if ticker == nil {
		return // Already stopped
	}

	ticker.Stop()
	close(p.stopChan)
	<-p.done

	fmt.Print(clearLineSequence)
}
