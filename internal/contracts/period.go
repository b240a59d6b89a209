package contracts

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Granularity distinguishes monthly from quarterly periods.
type Granularity string

const (
	Monthly   Granularity = "monthly"
	Quarterly Granularity = "quarterly"
)

// PeriodsPerYear returns 12 for monthly and 4 for quarterly data.
func (g Granularity) PeriodsPerYear() int {
	if g == Quarterly {
		return 4
	}
	return 12
}

// Period is a single calendar month or fiscal quarter. Periods of the same
// granularity are totally ordered; mixing granularities is a programming
// error and Compare panics on it.
type Period struct {
	Year        int         `json:"year"`
	Num         int         `json:"num"` // month 1-12 or quarter 1-4
	Granularity Granularity `json:"granularity"`
}

// NewMonth creates a monthly period.
func NewMonth(year, month int) Period {
	return Period{Year: year, Num: month, Granularity: Monthly}
}

// NewQuarter creates a quarterly period.
func NewQuarter(year, quarter int) Period {
	return Period{Year: year, Num: quarter, Granularity: Quarterly}
}

// ParseMonth parses "YYYY-MM".
func ParseMonth(s string) (Period, error) {
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return Period{}, fmt.Errorf("invalid month %q: want YYYY-MM", s)
	}
	year, err := strconv.Atoi(parts[0])
	if err != nil {
		return Period{}, fmt.Errorf("invalid month %q: %w", s, err)
	}
	month, err := strconv.Atoi(parts[1])
	if err != nil || month < 1 || month > 12 {
		return Period{}, fmt.Errorf("invalid month %q: month out of range", s)
	}
	return NewMonth(year, month), nil
}

// ParseQuarter parses "YYYY-Qn".
func ParseQuarter(s string) (Period, error) {
	parts := strings.SplitN(s, "-Q", 2)
	if len(parts) != 2 {
		return Period{}, fmt.Errorf("invalid quarter %q: want YYYY-Qn", s)
	}
	year, err := strconv.Atoi(parts[0])
	if err != nil {
		return Period{}, fmt.Errorf("invalid quarter %q: %w", s, err)
	}
	quarter, err := strconv.Atoi(parts[1])
	if err != nil || quarter < 1 || quarter > 4 {
		return Period{}, fmt.Errorf("invalid quarter %q: quarter out of range", s)
	}
	return NewQuarter(year, quarter), nil
}

// ParsePeriod accepts either the month or the quarter format.
func ParsePeriod(s string) (Period, error) {
	if strings.Contains(s, "-Q") {
		return ParseQuarter(s)
	}
	return ParseMonth(s)
}

// String renders "YYYY-MM" for months and "YYYY-Qn" for quarters.
func (p Period) String() string {
	if p.Granularity == Quarterly {
		return fmt.Sprintf("%04d-Q%d", p.Year, p.Num)
	}
	return fmt.Sprintf("%04d-%02d", p.Year, p.Num)
}

// IsZero reports whether the period is unset.
func (p Period) IsZero() bool {
	return p.Year == 0 && p.Num == 0
}

// Add steps n periods forward (negative n steps backward).
func (p Period) Add(n int) Period {
	per := p.Granularity.PeriodsPerYear()
	total := p.Year*per + (p.Num - 1) + n
	year := total / per
	num := total%per + 1
	if total < 0 && total%per != 0 {
		year--
		num = total%per + per + 1
	}
	return Period{Year: year, Num: num, Granularity: p.Granularity}
}

// Next returns the immediately following period.
func (p Period) Next() Period { return p.Add(1) }

// Prev returns the immediately preceding period.
func (p Period) Prev() Period { return p.Add(-1) }

// YearAgo returns the same calendar period one year earlier.
func (p Period) YearAgo() Period {
	return Period{Year: p.Year - 1, Num: p.Num, Granularity: p.Granularity}
}

// Compare returns -1, 0 or +1. Comparing different granularities panics.
func (p Period) Compare(other Period) int {
	if p.Granularity != other.Granularity {
		panic(fmt.Sprintf("comparing %s period to %s period", p.Granularity, other.Granularity))
	}
	a := p.Year*p.Granularity.PeriodsPerYear() + p.Num
	b := other.Year*other.Granularity.PeriodsPerYear() + other.Num
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Before reports whether p is strictly earlier than other.
func (p Period) Before(other Period) bool { return p.Compare(other) < 0 }

// After reports whether p is strictly later than other.
func (p Period) After(other Period) bool { return p.Compare(other) > 0 }

// Equal reports whether p and other are the same period.
func (p Period) Equal(other Period) bool {
	return p.Year == other.Year && p.Num == other.Num && p.Granularity == other.Granularity
}

// MonthOfYear returns the calendar month (1-12) the period closes in.
// For quarters this is the final month of the quarter.
func (p Period) MonthOfYear() int {
	if p.Granularity == Quarterly {
		return p.Num * 3
	}
	return p.Num
}

// EndDate returns the last calendar day covered by the period. Quarterly
// reporting dates follow the exchange convention (03-31, 06-30, 09-30, 12-31).
func (p Period) EndDate() time.Time {
	month := time.Month(p.MonthOfYear())
	firstOfNext := time.Date(p.Year, month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	return firstOfNext.AddDate(0, 0, -1)
}

// MarshalJSON renders the period as its string form.
func (p Period) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON accepts the string form produced by MarshalJSON.
func (p *Period) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*p = Period{}
		return nil
	}
	parsed, err := ParsePeriod(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
