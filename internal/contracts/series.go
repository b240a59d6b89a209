package contracts

import "fmt"

// Point is one observation of a series.
type Point struct {
	Period Period  `json:"period"`
	Value  float64 `json:"value"`
}

// Series is an ordered sequence of observations for one stock, strictly
// increasing in Period with no duplicates. A Series fetched with a cutoff
// never contains a period after that cutoff.
type Series []Point

// NewSeries validates ordering and uniqueness.
func NewSeries(points []Point) (Series, error) {
	s := Series(points)
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks the ordering invariant.
func (s Series) Validate() error {
	for i := 1; i < len(s); i++ {
		if !s[i-1].Period.Before(s[i].Period) {
			return fmt.Errorf("series not strictly increasing at index %d (%s >= %s)",
				i, s[i-1].Period, s[i].Period)
		}
	}
	return nil
}

// Len returns the number of observations.
func (s Series) Len() int { return len(s) }

// Empty reports whether the series has no observations.
func (s Series) Empty() bool { return len(s) == 0 }

// Latest returns the most recent observation.
func (s Series) Latest() (Point, bool) {
	if len(s) == 0 {
		return Point{}, false
	}
	return s[len(s)-1], true
}

// Tail returns the last n observations (the whole series when n >= Len).
func (s Series) Tail(n int) Series {
	if n >= len(s) {
		return s
	}
	if n <= 0 {
		return nil
	}
	return s[len(s)-n:]
}

// Values extracts the raw values in period order.
func (s Series) Values() []float64 {
	out := make([]float64, len(s))
	for i, p := range s {
		out[i] = p.Value
	}
	return out
}

// ValueAt looks up the observation for an exact period.
func (s Series) ValueAt(period Period) (float64, bool) {
	for _, p := range s {
		if p.Period.Equal(period) {
			return p.Value, true
		}
	}
	return 0, false
}

// Clip drops every observation after the cutoff. The point-in-time
// repositories already enforce this boundary; Clip exists so callers holding
// a full history can re-slice it without a repository round trip.
func (s Series) Clip(cutoff Period) Series {
	out := make(Series, 0, len(s))
	for _, p := range s {
		if p.Period.After(cutoff) {
			break
		}
		out = append(out, p)
	}
	return out
}

// Span describes the range of data actually used for an estimate.
func (s Series) Span() TrainingRange {
	if len(s) == 0 {
		return TrainingRange{}
	}
	return TrainingRange{
		Start:      s[0].Period,
		End:        s[len(s)-1].Period,
		DataPoints: len(s),
	}
}

// Mean returns the arithmetic mean of the values, 0 for an empty series.
func (s Series) Mean() float64 {
	if len(s) == 0 {
		return 0
	}
	sum := 0.0
	for _, p := range s {
		sum += p.Value
	}
	return sum / float64(len(s))
}

// GrowthRates returns period-over-period growth rates. Observations whose
// predecessor is zero are skipped rather than producing Inf.
func (s Series) GrowthRates() []float64 {
	var out []float64
	for i := 1; i < len(s); i++ {
		prev := s[i-1].Value
		if prev == 0 {
			continue
		}
		out = append(out, (s[i].Value-prev)/abs(prev))
	}
	return out
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// QuarterlyFromMonthly sums a monthly series into quarters. Quarters missing
// any of their three months are dropped, so a partially reported quarter
// never appears as an artificially low observation.
func QuarterlyFromMonthly(s Series) Series {
	type bucket struct {
		sum   float64
		count int
	}
	buckets := make(map[Period]*bucket, len(s)/3+1)
	var order []Period
	for _, p := range s {
		if p.Period.Granularity != Monthly {
			continue
		}
		q := NewQuarter(p.Period.Year, (p.Period.Num-1)/3+1)
		b, ok := buckets[q]
		if !ok {
			b = &bucket{}
			buckets[q] = b
			order = append(order, q)
		}
		b.sum += p.Value
		b.count++
	}
	out := make(Series, 0, len(order))
	for _, q := range order {
		if b := buckets[q]; b.count == 3 {
			out = append(out, Point{Period: q, Value: b.sum})
		}
	}
	return out
}
