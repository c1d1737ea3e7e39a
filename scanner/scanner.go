// Package scanner discovers board candidates: it runs the transport scan,
// applies the board advertisement filter, and dedupes results by device
// identifier.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"

	"github.com/floatdeck/boardlink/internal/onewheel"
	"github.com/floatdeck/boardlink/internal/ringchan"
	"github.com/floatdeck/boardlink/internal/transport"
)

// Candidate is one board-looking device seen during a scan batch.
type Candidate struct {
	ID         string
	Name       string
	Address    string
	RSSI       int
	Services   []string
	ModelGuess onewheel.Model
	LastSeen   time.Time
}

// CandidateEventType marks if the candidate was newly discovered or updated
type CandidateEventType int

const (
	EventNew CandidateEventType = iota
	EventUpdated
)

type CandidateEvent struct {
	Type      CandidateEventType
	Candidate Candidate
}

// ScanOptions configures scanning behavior
type ScanOptions struct {
	Duration        time.Duration
	DuplicateFilter bool
	AllowList       []string
	BlockList       []string
}

// DefaultScanOptions returns default scanning options
func DefaultScanOptions() *ScanOptions {
	return &ScanOptions{
		Duration:        10 * time.Second,
		DuplicateFilter: false,
	}
}

// Scanner handles board candidate discovery
type Scanner struct {
	link       transport.Scanner
	logger     *logrus.Logger
	candidates *hashmap.Map[string, *Candidate]
	events     *ringchan.RingChannel[CandidateEvent]
}

// New creates a scanner over the given transport.
func New(link transport.Scanner, logger *logrus.Logger) *Scanner {
	if logger == nil {
		logger = logrus.New()
	}
	return &Scanner{
		link:   link,
		logger: logger,
		events: ringchan.New[CandidateEvent](100),
	}
}

// Events returns a read-only channel of candidate events.
func (s *Scanner) Events() <-chan CandidateEvent {
	return s.events.C()
}

// Scan runs discovery for the configured duration and returns the candidate
// batch sorted by signal strength, strongest first. Each call replaces the
// previous batch.
func (s *Scanner) Scan(ctx context.Context, opts *ScanOptions) ([]Candidate, error) {
	if opts == nil {
		opts = DefaultScanOptions()
	}
	s.candidates = hashmap.New[string, *Candidate]()

	s.logger.WithField("duration", opts.Duration).Info("Starting board scan...")

	scanCtx := ctx
	if opts.Duration > 0 {
		var cancel context.CancelFunc
		scanCtx, cancel = context.WithTimeout(ctx, opts.Duration)
		defer cancel()
	}

	err := s.link.Scan(scanCtx, !opts.DuplicateFilter, func(adv transport.Advertisement) {
		s.handleAdvertisement(adv, opts)
	})
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	batch := make([]Candidate, 0, s.candidates.Len())
	s.candidates.Range(func(_ string, c *Candidate) bool {
		batch = append(batch, *c)
		return true
	})
	sort.Slice(batch, func(i, j int) bool { return batch[i].RSSI > batch[j].RSSI })

	s.logger.WithField("candidates", len(batch)).Info("Board scan completed")
	return batch, nil
}

// handleAdvertisement classifies one advertisement and updates the batch.
func (s *Scanner) handleAdvertisement(adv transport.Advertisement, opts *ScanOptions) {
	addr := adv.Addr()

	for _, blocked := range opts.BlockList {
		if addr == blocked {
			return
		}
	}
	if len(opts.AllowList) > 0 {
		allowed := false
		for _, a := range opts.AllowList {
			if addr == a {
				allowed = true
				break
			}
		}
		if !allowed {
			return
		}
	}

	if !onewheel.IsCandidate(adv.LocalName(), addr, adv.RSSI(), adv.Services()) {
		return
	}

	candidate := &Candidate{
		ID:         addr,
		Name:       adv.LocalName(),
		Address:    addr,
		RSSI:       adv.RSSI(),
		Services:   transport.NormalizeUUIDs(adv.Services()),
		ModelGuess: onewheel.DetectModel(adv.LocalName(), ""),
		LastSeen:   time.Now(),
	}
	if candidate.Name == "" {
		candidate.Name = addr
	}

	_, existing := s.candidates.Get(addr)
	s.candidates.Set(addr, candidate)

	event := CandidateEvent{Candidate: *candidate}
	if existing {
		event.Type = EventUpdated
	} else {
		s.logger.WithFields(logrus.Fields{
			"name":    candidate.Name,
			"address": candidate.Address,
			"rssi":    candidate.RSSI,
			"model":   candidate.ModelGuess.String(),
		}).Info("Discovered board candidate")
		event.Type = EventNew
	}
	s.events.Send(event)
}
