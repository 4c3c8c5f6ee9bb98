package availability

import (
	"zarp/internal/domain/daterange"
	"zarp/internal/domain/shared/money"
)

// CandidateSelection is a guest's in-progress check-in/check-out choice.
// The stay occupies the half-open range [CheckIn, CheckOut): the checkout
// day is the first vacated day.
type CandidateSelection struct {
	CheckIn  daterange.Day
	CheckOut daterange.Day
}

func (c CandidateSelection) Nights() int {
	return int(c.CheckOut - c.CheckIn)
}

func (c CandidateSelection) TotalPrice(pricePerNight money.Money) money.Money {
	return pricePerNight.Multiply(int64(c.Nights()))
}
