package behavior

import "github.com/shopspring/decimal"

const maxNewtonIterations = 200

// Sqrt returns the square root of x rounded to places decimal places, found
// by Newton iteration in decimal arithmetic. Non-positive input yields zero.
func Sqrt(x decimal.Decimal, places int32) decimal.Decimal {
	if !x.IsPositive() {
		return decimal.Zero
	}

	work := places + 4
	two := decimal.NewFromInt(2)
	epsilon := decimal.New(1, -(places + 2))

	guess := x
	if guess.LessThan(decimal.NewFromInt(1)) {
		guess = decimal.NewFromInt(1)
	}

	for i := 0; i < maxNewtonIterations; i++ {
		next := guess.Add(x.DivRound(guess, work)).DivRound(two, work)
		if next.Sub(guess).Abs().LessThan(epsilon) {
			guess = next
			break
		}
		guess = next
	}
	return guess.Round(places)
}
