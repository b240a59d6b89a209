package contracts

import (
	"encoding/json"
	"testing"
)

func TestParsePeriod(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    Period
		wantErr bool
	}{
		{"month", "2024-03", NewMonth(2024, 3), false},
		{"month december", "2023-12", NewMonth(2023, 12), false},
		{"quarter", "2024-Q2", NewQuarter(2024, 2), false},
		{"quarter four", "2022-Q4", NewQuarter(2022, 4), false},
		{"month out of range", "2024-13", Period{}, true},
		{"quarter out of range", "2024-Q5", Period{}, true},
		{"garbage", "not-a-period", Period{}, true},
		{"empty", "", Period{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePeriod(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParsePeriod(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if err == nil && !got.Equal(tt.want) {
				t.Errorf("ParsePeriod(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestPeriodStringRoundTrip(t *testing.T) {
	periods := []Period{
		NewMonth(2024, 1),
		NewMonth(2019, 12),
		NewQuarter(2024, 1),
		NewQuarter(2020, 4),
	}
	for _, p := range periods {
		got, err := ParsePeriod(p.String())
		if err != nil {
			t.Fatalf("ParsePeriod(%q): %v", p.String(), err)
		}
		if !got.Equal(p) {
			t.Errorf("round trip %v -> %q -> %v", p, p.String(), got)
		}
	}
}

func TestPeriodAdd(t *testing.T) {
	tests := []struct {
		name string
		p    Period
		n    int
		want Period
	}{
		{"month forward", NewMonth(2024, 1), 1, NewMonth(2024, 2)},
		{"month year wrap", NewMonth(2024, 12), 1, NewMonth(2025, 1)},
		{"month back across year", NewMonth(2024, 1), -1, NewMonth(2023, 12)},
		{"month twelve back", NewMonth(2024, 6), -12, NewMonth(2023, 6)},
		{"month many forward", NewMonth(2023, 11), 14, NewMonth(2025, 1)},
		{"quarter forward", NewQuarter(2024, 4), 1, NewQuarter(2025, 1)},
		{"quarter back", NewQuarter(2024, 1), -2, NewQuarter(2023, 3)},
		{"zero", NewMonth(2024, 5), 0, NewMonth(2024, 5)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.p.Add(tt.n); !got.Equal(tt.want) {
				t.Errorf("%v.Add(%d) = %v, want %v", tt.p, tt.n, got, tt.want)
			}
		})
	}
}

func TestPeriodCompare(t *testing.T) {
	a := NewMonth(2024, 3)
	b := NewMonth(2024, 4)
	if !a.Before(b) || b.Before(a) {
		t.Errorf("expected %v before %v", a, b)
	}
	if !b.After(a) {
		t.Errorf("expected %v after %v", b, a)
	}
	if a.Compare(a) != 0 {
		t.Errorf("expected %v equal to itself", a)
	}
}

func TestPeriodCompareMixedGranularityPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic comparing monthly to quarterly")
		}
	}()
	NewMonth(2024, 3).Compare(NewQuarter(2024, 1))
}

func TestPeriodYearAgo(t *testing.T) {
	if got := NewMonth(2024, 2).YearAgo(); !got.Equal(NewMonth(2023, 2)) {
		t.Errorf("YearAgo = %v, want 2023-02", got)
	}
	if got := NewQuarter(2024, 3).YearAgo(); !got.Equal(NewQuarter(2023, 3)) {
		t.Errorf("YearAgo = %v, want 2023-Q3", got)
	}
}

func TestPeriodEndDate(t *testing.T) {
	tests := []struct {
		p    Period
		want string
	}{
		{NewMonth(2024, 2), "2024-02-29"}, // leap year
		{NewMonth(2023, 2), "2023-02-28"},
		{NewMonth(2024, 4), "2024-04-30"},
		{NewQuarter(2024, 1), "2024-03-31"},
		{NewQuarter(2024, 2), "2024-06-30"},
		{NewQuarter(2024, 4), "2024-12-31"},
	}
	for _, tt := range tests {
		if got := tt.p.EndDate().Format("2006-01-02"); got != tt.want {
			t.Errorf("%v.EndDate() = %s, want %s", tt.p, got, tt.want)
		}
	}
}

func TestPeriodJSON(t *testing.T) {
	type payload struct {
		Cutoff Period `json:"cutoff"`
		Target Period `json:"target"`
	}
	in := payload{Cutoff: NewMonth(2024, 6), Target: NewQuarter(2024, 3)}
	raw, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"cutoff":"2024-06","target":"2024-Q3"}`
	if string(raw) != want {
		t.Errorf("marshal = %s, want %s", raw, want)
	}
	var out payload
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !out.Cutoff.Equal(in.Cutoff) || !out.Target.Equal(in.Target) {
		t.Errorf("round trip = %+v, want %+v", out, in)
	}
}
