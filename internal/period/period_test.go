package period

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func mustParse(t *testing.T, s string, asOf time.Time) Period {
	t.Helper()
	p, err := Parse(s, asOf)
	if err != nil {
		t.Fatalf("Parse(%q) failed: %v", s, err)
	}
	return p
}

func TestParse_Absolute(t *testing.T) {
	asOf := date(2026, 2, 7)
	tests := []struct {
		in   string
		want Period
	}{
		{"2025", Period{Type: Year, Year: 2025}},
		{"2025-H1", Period{Type: Half, Year: 2025, Num: 1}},
		{"2025-h2", Period{Type: Half, Year: 2025, Num: 2}},
		{"2025-Q1", Period{Type: Quarter, Year: 2025, Num: 1}},
		{"2025-q4", Period{Type: Quarter, Year: 2025, Num: 4}},
		{"2025-01", Period{Type: Month, Year: 2025, Num: 1}},
		{"2025-12", Period{Type: Month, Year: 2025, Num: 12}},
		{"2025-W05", Period{Type: Week, Year: 2025, Num: 5}},
		{"2025-W1", Period{Type: Week, Year: 2025, Num: 1}},
	}
	for _, tt := range tests {
		got := mustParse(t, tt.in, asOf)
		if got != tt.want {
			t.Errorf("Parse(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestParse_Rolling(t *testing.T) {
	asOf := date(2026, 2, 7)
	p := mustParse(t, "30d", asOf)
	if p.Type != Rolling || p.Days != 30 {
		t.Fatalf("Parse(30d) = %+v", p)
	}
	p2 := mustParse(t, "rolling-7d", asOf)
	if p2.Type != Rolling || p2.Days != 7 {
		t.Fatalf("Parse(rolling-7d) = %+v", p2)
	}
	start, end := p2.Range()
	if !end.Equal(asOf) {
		t.Errorf("rolling end = %v, want %v", end, asOf)
	}
	if !start.Equal(date(2026, 2, 1)) {
		t.Errorf("rolling-7d start = %v, want 2026-02-01", start)
	}
}

func TestParse_ToDate(t *testing.T) {
	asOf := date(2026, 2, 7)

	p := mustParse(t, "ytd", asOf)
	if p.Type != YearToDate || p.Year != 2026 {
		t.Fatalf("ytd = %+v", p)
	}
	start, end := p.Range()
	if !start.Equal(date(2026, 1, 1)) || !end.Equal(asOf) {
		t.Errorf("ytd range = %v..%v", start, end)
	}

	p = mustParse(t, "qtd", asOf)
	if p.Type != QuarterToDate || p.Num != 1 {
		t.Fatalf("qtd = %+v", p)
	}

	p = mustParse(t, "mtd", asOf)
	if p.Type != MonthToDate || p.Num != 2 {
		t.Fatalf("mtd = %+v", p)
	}

	p = mustParse(t, "htd", asOf)
	if p.Type != HalfToDate || p.Num != 1 {
		t.Fatalf("htd = %+v", p)
	}

	p = mustParse(t, "wtd", asOf)
	if p.Type != WeekToDate {
		t.Fatalf("wtd = %+v", p)
	}
}

func TestParse_Invalid(t *testing.T) {
	asOf := date(2026, 2, 7)
	for _, s := range []string{"garbage", "2025-Q5", "2025-13", "2025-W54", "0d", "-3d", "202"} {
		if _, err := Parse(s, asOf); err == nil {
			t.Errorf("Parse(%q) should fail", s)
		}
	}
}

func TestKey_RoundTrip(t *testing.T) {
	asOf := date(2026, 2, 7)
	for _, s := range []string{"2025", "2025-H1", "2025-Q3", "2025-07", "2025-W05", "30d"} {
		p := mustParse(t, s, asOf)
		again := mustParse(t, p.Key(), asOf)
		if again.Key() != p.Key() {
			t.Errorf("round trip %q -> %q -> %q", s, p.Key(), again.Key())
		}
	}
}

func TestRange_Quarter(t *testing.T) {
	s, e := Period{Type: Quarter, Year: 2025, Num: 1}.Range()
	if !s.Equal(date(2025, 1, 1)) || !e.Equal(date(2025, 3, 31)) {
		t.Errorf("Q1 2025 = %v..%v", s, e)
	}
	s, e = Period{Type: Quarter, Year: 2025, Num: 2}.Range()
	if !s.Equal(date(2025, 4, 1)) || !e.Equal(date(2025, 6, 30)) {
		t.Errorf("Q2 2025 = %v..%v", s, e)
	}
}

func TestRange_Month_LeapFebruary(t *testing.T) {
	_, e := Period{Type: Month, Year: 2024, Num: 2}.Range()
	if !e.Equal(date(2024, 2, 29)) {
		t.Errorf("Feb 2024 end = %v, want 2024-02-29", e)
	}
	_, e = Period{Type: Month, Year: 2025, Num: 2}.Range()
	if !e.Equal(date(2025, 2, 28)) {
		t.Errorf("Feb 2025 end = %v, want 2025-02-28", e)
	}
}

func TestRange_Week(t *testing.T) {
	s, e := Period{Type: Week, Year: 2025, Num: 1}.Range()
	if s.Weekday() != time.Monday {
		t.Errorf("week start is %v, want Monday", s.Weekday())
	}
	if e.Sub(s).Hours() != 6*24 {
		t.Errorf("week span = %v", e.Sub(s))
	}
	// ISO week 1 of 2025 starts Dec 30, 2024.
	if !s.Equal(date(2024, 12, 30)) {
		t.Errorf("2025-W01 start = %v, want 2024-12-30", s)
	}
}

func TestPrevious(t *testing.T) {
	tests := []struct {
		in, want Period
	}{
		{Period{Type: Year, Year: 2025}, Period{Type: Year, Year: 2024}},
		{Period{Type: Half, Year: 2025, Num: 1}, Period{Type: Half, Year: 2024, Num: 2}},
		{Period{Type: Half, Year: 2025, Num: 2}, Period{Type: Half, Year: 2025, Num: 1}},
		{Period{Type: Quarter, Year: 2025, Num: 1}, Period{Type: Quarter, Year: 2024, Num: 4}},
		{Period{Type: Quarter, Year: 2025, Num: 3}, Period{Type: Quarter, Year: 2025, Num: 2}},
		{Period{Type: Month, Year: 2025, Num: 1}, Period{Type: Month, Year: 2024, Num: 12}},
		{Period{Type: Month, Year: 2025, Num: 6}, Period{Type: Month, Year: 2025, Num: 5}},
	}
	for _, tt := range tests {
		if got := tt.in.Previous(); got != tt.want {
			t.Errorf("%v.Previous() = %+v, want %+v", tt.in.Key(), got, tt.want)
		}
	}
}

func TestPrevious_Week_CrossesYear(t *testing.T) {
	got := Period{Type: Week, Year: 2026, Num: 1}.Previous()
	// The Monday one week before 2026-W01 falls in the last ISO week of 2025.
	if got.Year != 2025 {
		t.Errorf("previous of 2026-W01 = %+v", got)
	}
}

func TestPriorToDate_Quarter(t *testing.T) {
	// Q1 2026 as of Feb 7 = day offset 37 from Jan 1.
	// Prior quarter Q4 2025: Oct 1 + 37 days = Nov 7.
	asOf := date(2026, 2, 7)
	p := Period{Type: Quarter, Year: 2026, Num: 1}
	prior := p.PriorToDate(asOf)
	s, e := prior.Range()
	if !s.Equal(date(2025, 10, 1)) {
		t.Errorf("prior start = %v, want 2025-10-01", s)
	}
	if !e.Equal(date(2025, 11, 7)) {
		t.Errorf("prior end = %v, want 2025-11-07", e)
	}
}

func TestPriorToDate_MonthClamp(t *testing.T) {
	// March 30 against February clamps to Feb 28.
	asOf := date(2025, 3, 30)
	p := Period{Type: Month, Year: 2025, Num: 3}
	prior := p.PriorToDate(asOf)
	_, e := prior.Range()
	if !e.Equal(date(2025, 2, 28)) {
		t.Errorf("clamped prior end = %v, want 2025-02-28", e)
	}
}

func TestIsCurrent(t *testing.T) {
	asOf := date(2026, 2, 7)
	if !(Period{Type: Year, Year: 2026}).IsCurrent(asOf) {
		t.Error("2026 should be current on 2026-02-07")
	}
	if (Period{Type: Year, Year: 2024}).IsCurrent(asOf) {
		t.Error("2024 should not be current on 2026-02-07")
	}
	if !(Period{Type: Quarter, Year: 2026, Num: 1}).IsCurrent(asOf) {
		t.Error("2026-Q1 should be current on 2026-02-07")
	}
}
