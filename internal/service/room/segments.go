package room

import (
	"context"
	"time"

	"github.com/syncroom/server/internal/domain"
)

// skipForward pushes t past every blocked segment it lands in. Iterates
// because skipping one segment's end can land inside the next.
func skipForward(segments []domain.Segment, blocked map[string]bool, t float64) float64 {
	for {
		moved := false
		for _, seg := range segments {
			if !blocked[seg.Category] {
				continue
			}
			if t >= seg.Start && t < seg.End {
				t = seg.End
				moved = true
			}
		}
		if !moved {
			return t
		}
	}
}

func (r *Room) skipForwardLocked(t float64) float64 {
	if r.source == nil {
		return t
	}

	return skipForward(r.source.Segments, r.blockedCategories, t)
}

// cancelSegmentTimersLocked stops all armed timers and bumps segGen so a
// timer that already fired but has not taken the lock yet discards itself.
func (r *Room) cancelSegmentTimersLocked() {
	r.segGen++
	for _, t := range r.segmentTimers {
		t.Stop()
	}
	r.segmentTimers = nil
}

// rescheduleSegmentsLocked re-arms one timer per upcoming blocked segment,
// derived solely from the committed seek position. Scheduling always goes
// through here; timers are never adjusted in place.
func (r *Room) rescheduleSegmentsLocked() {
	r.cancelSegmentTimersLocked()

	if r.paused || r.source == nil {
		return
	}

	pos := r.positionLocked()
	gen := r.segGen

	for _, seg := range r.source.Segments {
		if !r.blockedCategories[seg.Category] || seg.End <= pos {
			continue
		}

		delay := time.Duration((seg.Start - pos) / r.playbackSpeed * float64(time.Second))
		if delay < 0 {
			delay = 0
		}

		segment := seg
		timer := time.AfterFunc(delay, func() {
			r.onSegmentReached(gen, segment)
		})
		r.segmentTimers = append(r.segmentTimers, timer)
	}
}

func (r *Room) onSegmentReached(gen uint64, seg domain.Segment) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// any pause, seek or source change since arming invalidates the timer
	if r.segGen != gen || r.paused {
		return
	}
	if r.positionLocked() >= seg.End {
		return
	}

	r.seekLocked(context.Background(), seg.End)
}
