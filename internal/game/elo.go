package game

import "math"

// kFactor picks the rating volatility tier: provisional players (<30 games)
// move fastest, 2400+ players slowest.
func kFactor(rating, gamesPlayed int) float64 {
	if gamesPlayed < 30 {
		return 40
	}
	if rating >= 2400 {
		return 10
	}
	return 20
}

// expectedScore is the classic Elo expectation of a against b.
func expectedScore(a, b int) float64 {
	return 1.0 / (1.0 + math.Pow(10, float64(b-a)/400.0))
}

// CalculateElo returns both players' new ratings. outcome is from player 1's
// perspective: 1.0 win, 0.0 loss, 0.5 draw. Results are rounded half away
// from zero and never drop below zero.
func CalculateElo(rating1, games1, rating2, games2 int, outcome float64) (int, int) {
	k1 := kFactor(rating1, games1)
	k2 := kFactor(rating2, games2)

	new1 := float64(rating1) + k1*(outcome-expectedScore(rating1, rating2))
	new2 := float64(rating2) + k2*((1.0-outcome)-expectedScore(rating2, rating1))

	r1 := int(math.Round(new1))
	r2 := int(math.Round(new2))
	if r1 < 0 {
		r1 = 0
	}
	if r2 < 0 {
		r2 = 0
	}
	return r1, r2
}
