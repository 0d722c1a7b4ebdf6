// Package hydration prefetches render-ready card data for queued session
// items so card transitions never wait on a document fetch.
package hydration

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/studyflow/studyflow/internal/content"
)

const (
	// DefaultBufferSize is the target number of ready cards.
	DefaultBufferSize = 5

	// fillThreshold triggers a background fill when the buffer drops below it.
	fillThreshold = 3

	// pollInterval is how often WaitForHydratedCard re-checks the buffer.
	pollInterval = 25 * time.Millisecond

	// maxConsecutiveSkips bounds one fill pass against a run of cards whose
	// documents no longer load.
	maxConsecutiveSkips = 20
)

// Loader resolves a queued item into a loaded card document.
type Loader interface {
	LoadCard(ctx context.Context, courseID, cardID string) (*content.CardDocument, error)
}

// Selector returns the next queue item to hydrate. ok is false when no
// source cards remain.
type Selector func() (item content.StudySessionItem, ok bool)

// SkipFunc is called when an item fails hydration and is dropped.
type SkipFunc func(item content.StudySessionItem, err error)

// HydratedCard is a session item resolved to its render-ready document.
type HydratedCard struct {
	Item content.StudySessionItem
	Doc  *content.CardDocument
}

// Service maintains a bounded buffer of hydrated cards, filled by a single
// background loop. Cards the user failed stay cached so their re-queue never
// refetches the document.
type Service struct {
	loader   Loader
	selector Selector
	onSkip   SkipFunc
	size     int
	log      *slog.Logger

	mu        sync.Mutex
	buffer    []*HydratedCard
	retained  map[string]*HydratedCard
	filling   bool
	exhausted bool
}

// NewService creates a hydration service. selector is injected by the session
// controller and embodies its selection policy; onSkip lets the controller
// clean up after dropped items (may be nil).
func NewService(loader Loader, selector Selector, onSkip SkipFunc, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		loader:   loader,
		selector: selector,
		onSkip:   onSkip,
		size:     DefaultBufferSize,
		log:      log.With("component", "hydration"),
		retained: make(map[string]*HydratedCard),
	}
}

// EnsureHydratedCards starts a non-blocking background fill when the buffer
// is low. At most one fill loop runs at a time.
func (s *Service) EnsureHydratedCards(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.filling || len(s.buffer) >= fillThreshold {
		return
	}
	s.filling = true
	s.exhausted = false
	go s.fill(ctx)
}

// fill hydrates items until the buffer reaches its target size or the
// selector runs dry. A load error drops the offending item without aborting
// the loop.
func (s *Service) fill(ctx context.Context) {
	defer func() {
		s.mu.Lock()
		s.filling = false
		s.mu.Unlock()
	}()

	skips := 0
	for {
		if ctx.Err() != nil {
			return
		}
		s.mu.Lock()
		full := len(s.buffer) >= s.size
		s.mu.Unlock()
		if full {
			return
		}

		item, ok := s.selector()
		if !ok {
			s.mu.Lock()
			s.exhausted = true
			s.mu.Unlock()
			return
		}

		// Failed cards were retained on dismissal; reuse the loaded document
		// instead of refetching.
		s.mu.Lock()
		cached, hit := s.retained[item.CardID]
		s.mu.Unlock()
		if hit {
			s.push(&HydratedCard{Item: item, Doc: cached.Doc})
			skips = 0
			continue
		}

		doc, err := s.loader.LoadCard(ctx, item.CourseID, item.CardID)
		if err != nil {
			s.log.Warn("hydration failed, dropping item",
				"cardId", item.CardID, "courseId", item.CourseID, "error", err)
			if s.onSkip != nil {
				s.onSkip(item, err)
			}
			skips++
			if skips >= maxConsecutiveSkips {
				s.log.Error("too many consecutive hydration failures, stopping fill",
					"skips", skips)
				return
			}
			continue
		}
		skips = 0
		s.push(&HydratedCard{Item: item, Doc: doc})
	}
}

func (s *Service) push(card *HydratedCard) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.buffer) >= s.size {
		// Buffer never exceeds its configured size.
		return
	}
	s.buffer = append(s.buffer, card)
}

// WaitForHydratedCard polls until a card is ready or no source cards remain.
// Returns (nil, nil) when the queues are exhausted, an error only when ctx is
// cancelled.
func (s *Service) WaitForHydratedCard(ctx context.Context) (*HydratedCard, error) {
	for {
		s.mu.Lock()
		if len(s.buffer) > 0 {
			card := s.buffer[0]
			s.buffer = s.buffer[1:]
			s.mu.Unlock()
			return card, nil
		}
		done := s.exhausted && !s.filling
		filling := s.filling
		s.mu.Unlock()

		if done {
			return nil, nil
		}
		if !filling {
			s.EnsureHydratedCards(ctx)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// Retain keeps a dismissed card's document cached for its failed-queue
// revisit.
func (s *Service) Retain(card *HydratedCard) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retained[card.Item.CardID] = card
}

// Release frees a card's cached document once it is finally dismissed.
func (s *Service) Release(cardID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.retained, cardID)
}

// BufferLen reports the number of ready cards.
func (s *Service) BufferLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buffer)
}
