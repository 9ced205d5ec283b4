package game

import "math"

// BaseScore is the number of points an instant correct answer is worth.
const BaseScore = 1000

// Score computes the points awarded for a single answer. Incorrect answers
// score zero. Correct answers decay linearly with elapsed time: full base at
// zero elapsed, zero at budget expiry. Elapsed is clamped server-side so a
// client cannot report its way above BaseScore or below zero.
func Score(correct bool, elapsedSec, budgetSec float64) int {
	if !correct || budgetSec <= 0 {
		return 0
	}
	if elapsedSec < 0 {
		elapsedSec = 0
	}
	if elapsedSec > budgetSec {
		elapsedSec = budgetSec
	}
	pts := int(math.Round(BaseScore * (1 - elapsedSec/budgetSec)))
	if pts < 0 {
		pts = 0
	}
	return pts
}
