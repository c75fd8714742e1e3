// Package points scores accepted receipts.
//
// Every rule works on exact decimal amounts; nothing is converted to a float,
// so cents never drift before the single ceiling step of the description rule.
package points

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/golang-sql/civil"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/receiptpoints/internal/receipt/domain"
)

const (
	roundDollarPoints     = 50
	quarterMultiplePoints = 25
	pairPoints            = 5
	oddDayPoints          = 6
	afternoonPoints       = 10
)

var (
	quartersPerUnit  = decimal.NewFromInt(4)
	descriptionRatio = decimal.RequireFromString("0.2")

	afternoonStart = civil.Time{Hour: 14}
	afternoonEnd   = civil.Time{Hour: 16}
)

// Breakdown lists the contribution of each rule.
type Breakdown struct {
	Retailer         int64 `json:"retailer"`
	RoundDollar      int64 `json:"round_dollar"`
	QuarterMultiple  int64 `json:"quarter_multiple"`
	PairedItems      int64 `json:"paired_items"`
	ItemDescriptions int64 `json:"item_descriptions"`
	OddDay           int64 `json:"odd_day"`
	AfternoonWindow  int64 `json:"afternoon_window"`
}

func (b Breakdown) Total() int64 {
	return b.Retailer +
		b.RoundDollar +
		b.QuarterMultiple +
		b.PairedItems +
		b.ItemDescriptions +
		b.OddDay +
		b.AfternoonWindow
}

// Compute returns the score of a valid receipt. An invalid receipt yields
// domain.ErrInvalidReceipt.
func Compute(r domain.Receipt) (int64, error) {
	b, err := Explain(r)
	if err != nil {
		return 0, err
	}
	return b.Total(), nil
}

// Explain returns the per-rule contributions of a valid receipt.
func Explain(r domain.Receipt) (Breakdown, error) {
	if !domain.IsValid(r) {
		return Breakdown{}, domain.ErrInvalidReceipt
	}

	return Breakdown{
		Retailer:         retailerPoints(r.Retailer),
		RoundDollar:      roundDollarBonus(*r.Total),
		QuarterMultiple:  quarterMultipleBonus(*r.Total),
		PairedItems:      pairedItemPoints(len(r.Items)),
		ItemDescriptions: descriptionPoints(r.Items),
		OddDay:           oddDayBonus(*r.PurchaseDate),
		AfternoonWindow:  afternoonBonus(*r.PurchaseTime),
	}, nil
}

func retailerPoints(retailer string) int64 {
	var n int64
	for _, ch := range retailer {
		if unicode.IsLetter(ch) || unicode.IsDigit(ch) {
			n++
		}
	}
	return n
}

func roundDollarBonus(total decimal.Decimal) int64 {
	if total.IsInteger() {
		return roundDollarPoints
	}
	return 0
}

func quarterMultipleBonus(total decimal.Decimal) int64 {
	if total.Mul(quartersPerUnit).IsInteger() {
		return quarterMultiplePoints
	}
	return 0
}

func pairedItemPoints(count int) int64 {
	return pairPoints * int64(count/2)
}

// descriptionPoints applies a literal length%3 check, so a description that
// trims to nothing still qualifies. Length is counted in characters after
// trimming Unicode white space.
func descriptionPoints(items []domain.Item) int64 {
	var total int64
	for _, item := range items {
		length := utf8.RuneCountInString(strings.TrimSpace(item.ShortDescription))
		if length%3 != 0 {
			continue
		}
		earned := item.Price.Mul(descriptionRatio).Ceil().IntPart()
		if earned > 0 {
			total += earned
		}
	}
	return total
}

func oddDayBonus(date civil.Date) int64 {
	if date.Day%2 != 0 {
		return oddDayPoints
	}
	return 0
}

func afternoonBonus(t civil.Time) int64 {
	at := sinceMidnight(t)
	if at > sinceMidnight(afternoonStart) && at < sinceMidnight(afternoonEnd) {
		return afternoonPoints
	}
	return 0
}

func sinceMidnight(t civil.Time) int64 {
	seconds := int64(t.Hour)*3600 + int64(t.Minute)*60 + int64(t.Second)
	return seconds*1_000_000_000 + int64(t.Nanosecond)
}
