// Package status exposes the read-only status projection of the
// pipeline: the latest snapshot per meeting for pollers, plus an
// in-process subscription fan-out and an optional Redis bridge for
// multi-process deployments.
package status

import (
	"sync"

	"github.com/minuteworks/scribe/pkg/logging"
	"github.com/minuteworks/scribe/pkg/meeting"
)

// Publisher retains the most recent snapshot per meeting and fans
// transitions out to subscribers. It is wired into the pipeline as its
// status listener, so snapshots reflect each transition immediately.
type Publisher struct {
	logger logging.Logger

	mu     sync.RWMutex
	latest map[string]meeting.StatusSnapshot
	subs   map[string]map[chan meeting.StatusSnapshot]bool
}

// NewPublisher creates a status publisher.
func NewPublisher(logger logging.Logger) *Publisher {
	return &Publisher{
		logger: logger.With(logging.F("component", "status_publisher")),
		latest: make(map[string]meeting.StatusSnapshot),
		subs:   make(map[string]map[chan meeting.StatusSnapshot]bool),
	}
}

// Publish records a snapshot and notifies the meeting's subscribers.
// Slow subscribers are skipped rather than blocking the pipeline.
func (p *Publisher) Publish(snap meeting.StatusSnapshot) {
	p.mu.Lock()
	p.latest[snap.MeetingID] = snap
	listeners := p.subs[snap.MeetingID]
	for ch := range listeners {
		select {
		case ch <- snap:
		default:
		}
	}
	p.mu.Unlock()
}

// Latest returns the most recent published snapshot for a meeting.
func (p *Publisher) Latest(meetingID string) (meeting.StatusSnapshot, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	snap, ok := p.latest[meetingID]
	return snap, ok
}

// Subscribe registers a channel receiving every subsequent transition
// for the meeting. The channel is buffered against bursts.
func (p *Publisher) Subscribe(meetingID string) chan meeting.StatusSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.subs[meetingID] == nil {
		p.subs[meetingID] = make(map[chan meeting.StatusSnapshot]bool)
	}
	ch := make(chan meeting.StatusSnapshot, 16)
	p.subs[meetingID][ch] = true
	return ch
}

// Unsubscribe removes and closes a subscription channel.
func (p *Publisher) Unsubscribe(meetingID string, ch chan meeting.StatusSnapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if listeners, ok := p.subs[meetingID]; ok {
		delete(listeners, ch)
		if len(listeners) == 0 {
			delete(p.subs, meetingID)
		}
	}
	close(ch)
}
