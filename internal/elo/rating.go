// Package elo maintains pairwise skill ratings for (user, card) pairs.
// A response is treated as a match between the user and the card: a correct
// answer is a win for the user and a loss for the card.
package elo

import "math"

// DefaultRating is the rating assigned to users and cards with no history.
const DefaultRating = 1000

// baseK is the K factor applied to a card's first interaction.
const baseK = 32

// Expected returns the probability that the user beats the card, using the
// standard 400-point logistic curve.
func Expected(userElo, cardElo float64) float64 {
	return 1 / (1 + math.Pow(10, (cardElo-userElo)/400))
}

// KFactor dampens rating volatility for cards with repeated interactions:
// k = ceil(32/attempts), never below 1.
func KFactor(attempts int) float64 {
	if attempts <= 1 {
		return baseK
	}
	k := math.Ceil(baseK / float64(attempts))
	if k < 1 {
		return 1
	}
	return k
}

// Update computes new user and card ratings from a match result.
// score is the user's result in [0,1]; the update is zero-sum.
func Update(userElo, cardElo, score, k float64) (newUser, newCard float64) {
	delta := k * (score - Expected(userElo, cardElo))
	return userElo + delta, cardElo - delta
}
