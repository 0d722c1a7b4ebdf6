package session

import (
	"github.com/studyflow/studyflow/internal/content"
)

// selectNextItemToHydrate is the hydration service's selector: it decides
// which queue the next card comes from, weighing the remaining time budget
// against the projected cost of clearing failures and reviews.
//
// The draw buckets are [0,newBound) new, [newBound,reviewBound) review, and
// [reviewBound,1) failed; empty queues are squeezed out of the draw and a
// fallback chain covers any residual miss.
func (c *Controller) selectNextItemToHydrate() (content.StudySessionItem, bool) {
	var zero content.StudySessionItem

	newLen := c.newQ.Len()
	reviewLen := c.reviewQ.Len()
	failedLen := c.failedQ.Len()
	if newLen == 0 && reviewLen == 0 && failedLen == 0 {
		return zero, false
	}

	secs := c.SecondsRemaining()
	if secs <= 0 {
		// Out of time: only failed cards are still worth serving.
		if failedLen == 0 {
			return zero, false
		}
		return c.dequeueFailed()
	}

	// Early in the session, force new cards until every source has had a
	// card served, so initial coverage is guaranteed.
	if c.newQ.Dequeues() < len(c.sources) && newLen > 0 {
		if item, ok := c.dequeueNew(); ok {
			return item, true
		}
	}

	cleanupTime := c.cleanupTime()
	reviewTime := float64(reviewSecsPerCard * reviewLen)
	remaining := float64(secs)

	var newBound, reviewBound float64
	switch {
	case remaining-cleanupTime-reviewTime > comfortMarginSecs:
		// Comfortable budget: favor new content.
		newBound, reviewBound = 0.5, 0.9
	case remaining-cleanupTime > comfortMarginSecs:
		// Enough time for cleanup but not much more: favor reviews.
		newBound, reviewBound = 0.05, 0.9
	default:
		// Budget nearly spent: favor clearing failures.
		newBound, reviewBound = 0.01, 0.1
	}

	// An empty queue gets no probability mass.
	if newLen == 0 {
		newBound = 0
	}
	if reviewLen == 0 {
		reviewBound = newBound
	}
	if failedLen == 0 {
		reviewBound = 1
	}

	c.mu.Lock()
	r := c.rng.Float64()
	c.mu.Unlock()

	switch {
	case r < newBound:
		if item, ok := c.dequeueNew(); ok {
			return item, true
		}
	case r < reviewBound:
		if item, ok := c.dequeueReview(); ok {
			return item, true
		}
	default:
		if item, ok := c.dequeueFailed(); ok {
			return item, true
		}
	}

	// The drawn bucket raced empty; fall through in priority order.
	if item, ok := c.dequeueNew(); ok {
		return item, true
	}
	if item, ok := c.dequeueReview(); ok {
		return item, true
	}
	return c.dequeueFailed()
}

// cleanupTime projects the seconds needed to clear the failed queue: the
// observed average time per attempt of each currently-failed card, summed.
func (c *Controller) cleanupTime() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := 0.0
	for _, item := range c.failedQ.Snapshot() {
		if n := c.attemptCount[item.CardID]; n > 0 {
			total += c.attemptSecs[item.CardID] / float64(n)
		}
	}
	return total
}

func (c *Controller) dequeueNew() (content.StudySessionItem, bool) {
	// A replan racing a draw can re-admit a card the navigator still reports
	// as unseen; markDrawn is the authoritative once-per-session gate, so
	// stale re-admissions are discarded here instead of served twice.
	for {
		item, ok := c.newQ.Dequeue(content.ItemID)
		if !ok {
			return item, false
		}
		if c.markDrawn(item.CardID) {
			c.noteDrawn(item)
			return item, true
		}
	}
}

func (c *Controller) dequeueReview() (content.StudySessionItem, bool) {
	for {
		item, ok := c.reviewQ.Dequeue(content.ItemID)
		if !ok {
			return item, false
		}
		if c.markDrawn(item.CardID) {
			c.noteDrawn(item)
			return item, true
		}
	}
}

func (c *Controller) dequeueFailed() (content.StudySessionItem, bool) {
	// Failed cards are the one deliberate re-serve: a card marked failed
	// re-enters this queue and must come back out, so drawn-ness never
	// filters here. Marking is still recorded for the replan exclusion.
	item, ok := c.failedQ.Dequeue(content.ItemID)
	if ok {
		c.markDrawn(item.CardID)
	}
	return item, ok
}

// markDrawn records a card as drawn this session. It reports whether the
// card was newly marked; a false return means the card was already served
// or buffered once.
func (c *Controller) markDrawn(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.drawn[id]; ok {
		return false
	}
	c.drawn[id] = struct{}{}
	return true
}

// noteDrawn updates the well-indicated countdown and kicks off a background
// replan when the supply of good cards runs low. The replan itself is
// single-flight, so repeated draws cannot stack replans.
func (c *Controller) noteDrawn(item content.StudySessionItem) {
	if item.Score < WellIndicatedScore {
		return
	}

	c.mu.Lock()
	if c.wellIndicated > 0 {
		c.wellIndicated--
	}
	trigger := c.wellIndicated <= ReplanBuffer && !c.replanInFlight && c.phase == PhaseActive
	ctx := c.sessionCtx
	c.mu.Unlock()

	if trigger && ctx != nil {
		go func() {
			if err := c.RequestReplan(ctx, nil); err != nil {
				c.log.Warn("background replan failed", "error", err)
			}
		}()
	}
}
