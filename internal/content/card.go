// Package content defines the weighted card candidates produced by content
// sources, the session items built from them, and the mixing/scoring used to
// rank candidates across sources.
package content

// Source identifies where a weighted candidate came from.
type Source string

const (
	SourceNew    Source = "new"
	SourceReview Source = "review"
	SourceFailed Source = "failed"
)

// WeightedCard is a scored content candidate. Immutable once emitted by a
// navigator.
type WeightedCard struct {
	CardID     string
	CourseID   string
	Score      float64 // always clamped to [0,1]
	Source     Source
	ReviewID   string // set for Source == SourceReview
	Provenance string // strategy id that produced the candidate
}

// ItemStatus tags a StudySessionItem with how it entered the session.
type ItemStatus string

const (
	StatusNew          ItemStatus = "new"
	StatusReview       ItemStatus = "review"
	StatusFailedNew    ItemStatus = "failed-new"
	StatusFailedReview ItemStatus = "failed-review"
)

// StudySessionItem is a queued unit of work. Identity is CardID, unique
// within a queue at any instant.
type StudySessionItem struct {
	CardID   string
	CourseID string
	Status   ItemStatus
	ReviewID string  // set for review-derived items
	Score    float64 // the candidate score the item entered the session with
}

// Failed reports whether the item has already been missed this session.
func (it StudySessionItem) Failed() bool {
	return it.Status == StatusFailedNew || it.Status == StatusFailedReview
}

// AsFailed returns a copy of the item re-tagged for the failed queue.
func (it StudySessionItem) AsFailed() StudySessionItem {
	switch it.Status {
	case StatusReview, StatusFailedReview:
		it.Status = StatusFailedReview
	default:
		it.Status = StatusFailedNew
	}
	return it
}

// ItemFromCard converts a weighted candidate into a session item.
func ItemFromCard(wc WeightedCard) StudySessionItem {
	item := StudySessionItem{
		CardID:   wc.CardID,
		CourseID: wc.CourseID,
		ReviewID: wc.ReviewID,
		Score:    wc.Score,
	}
	switch wc.Source {
	case SourceReview:
		item.Status = StatusReview
	case SourceFailed:
		item.Status = StatusFailedNew
	default:
		item.Status = StatusNew
	}
	return item
}

// ItemID is the id extractor used by session queues.
func ItemID(it StudySessionItem) string { return it.CardID }

// CardDocument is the fully loaded, render-ready form of a card. The engine
// treats the body as opaque; rendering belongs to the caller.
type CardDocument struct {
	CardID   string
	CourseID string
	Kind     string // "question" or "general"
	Body     string
	Tags     []string
}
