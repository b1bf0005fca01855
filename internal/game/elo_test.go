package game

import "testing"

func TestCalculateEloEqualRatingsWin(t *testing.T) {
	new1, new2 := CalculateElo(1000, 0, 1000, 0, 1.0)
	if new1 != 1020 || new2 != 980 {
		t.Errorf("got (%d, %d), want (1020, 980)", new1, new2)
	}
}

func TestCalculateEloEqualRatingsDraw(t *testing.T) {
	new1, new2 := CalculateElo(1000, 0, 1000, 0, 0.5)
	if new1 != 1000 || new2 != 1000 {
		t.Errorf("got (%d, %d), want (1000, 1000)", new1, new2)
	}
}

func TestCalculateEloFavoriteLosesMore(t *testing.T) {
	// Established players, 200-point gap, favorite loses.
	new1, new2 := CalculateElo(1200, 50, 1000, 50, 0.0)
	if new1 != 1185 || new2 != 1015 {
		t.Errorf("got (%d, %d), want (1185, 1015)", new1, new2)
	}

	// Favorite winning moves far less than favorite losing.
	win1, _ := CalculateElo(1200, 50, 1000, 50, 1.0)
	if gain := win1 - 1200; gain >= 1200-new1 {
		t.Errorf("favorite win gain %d should be smaller than loss %d", gain, 1200-new1)
	}
}

func TestCalculateEloClampsAtZero(t *testing.T) {
	new1, new2 := CalculateElo(5, 0, 5, 0, 0.0)
	if new1 != 0 {
		t.Errorf("loser rating = %d, want clamp to 0", new1)
	}
	if new2 != 25 {
		t.Errorf("winner rating = %d, want 25", new2)
	}
}

func TestCalculateEloDeltaSymmetry(t *testing.T) {
	// With equal K factors the exchange is zero-sum even after rounding.
	cases := []struct {
		r1, r2  int
		outcome float64
	}{
		{1000, 1000, 1.0},
		{1000, 1200, 1.0},
		{1537, 1204, 0.0},
		{1100, 1103, 0.5},
	}
	for _, tc := range cases {
		new1, new2 := CalculateElo(tc.r1, 100, tc.r2, 100, tc.outcome)
		if (new1 - tc.r1) != -(new2 - tc.r2) {
			t.Errorf("CalculateElo(%d, %d, %.1f): deltas %d and %d not symmetric",
				tc.r1, tc.r2, tc.outcome, new1-tc.r1, new2-tc.r2)
		}
	}
}

func TestKFactorTiers(t *testing.T) {
	cases := []struct {
		rating, games int
		want          float64
	}{
		{1000, 0, 40},
		{1000, 29, 40},
		{1000, 30, 20},
		{2399, 100, 20},
		{2400, 100, 10},
		{2500, 10, 40},
	}
	for _, tc := range cases {
		if got := kFactor(tc.rating, tc.games); got != tc.want {
			t.Errorf("kFactor(%d, %d) = %v, want %v", tc.rating, tc.games, got, tc.want)
		}
	}
}

func TestDetermineWinner(t *testing.T) {
	rock, paper, scissors := "rock", "paper", "scissors"
	cases := []struct {
		p1, p2 *string
		want   roundWinner
	}{
		{&rock, &scissors, winnerP1},
		{&scissors, &paper, winnerP1},
		{&paper, &rock, winnerP1},
		{&scissors, &rock, winnerP2},
		{&paper, &scissors, winnerP2},
		{&rock, &paper, winnerP2},
		{&rock, &rock, winnerDraw},
		{&rock, nil, winnerP1},
		{nil, &paper, winnerP2},
		{nil, nil, winnerDraw},
	}
	for _, tc := range cases {
		if got := determineWinner(tc.p1, tc.p2); got != tc.want {
			t.Errorf("determineWinner(%v, %v) = %v, want %v",
				strOrNil(tc.p1), strOrNil(tc.p2), got, tc.want)
		}
	}
}

func strOrNil(s *string) string {
	if s == nil {
		return "<nil>"
	}
	return *s
}
