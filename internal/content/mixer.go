package content

import "sort"

// Batch is one source's contribution to a mix, tagged with the source's
// position so provenance survives merging.
type Batch struct {
	SourceIndex int
	Weighted    []WeightedCard
}

// SourceMixer combines weighted batches from multiple content sources into
// one ranked list of at most limit cards.
type SourceMixer interface {
	Mix(batches []Batch, limit int) []WeightedCard
}

// QuotaRoundRobinMixer gives every source an equal quota of
// ceil(limit/len(batches)) slots before the final cut. A weak source is
// never starved by a strong one, at the cost of not being globally
// score-optimal.
type QuotaRoundRobinMixer struct{}

// Mix sorts each batch descending by score, truncates it to the per-source
// quota, then sorts the union descending and truncates to limit.
func (QuotaRoundRobinMixer) Mix(batches []Batch, limit int) []WeightedCard {
	if len(batches) == 0 || limit <= 0 {
		return []WeightedCard{}
	}

	quota := (limit + len(batches) - 1) / len(batches)

	var union []WeightedCard
	for _, b := range batches {
		cards := make([]WeightedCard, len(b.Weighted))
		copy(cards, b.Weighted)
		sortByScore(cards)
		if len(cards) > quota {
			cards = cards[:quota]
		}
		union = append(union, cards...)
	}

	sortByScore(union)
	if len(union) > limit {
		union = union[:limit]
	}
	return union
}

func sortByScore(cards []WeightedCard) {
	sort.SliceStable(cards, func(i, j int) bool {
		if cards[i].Score != cards[j].Score {
			return cards[i].Score > cards[j].Score
		}
		return cards[i].CardID < cards[j].CardID
	})
}
