package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// DateKey formats a date as the YYYY-MM-DD key used throughout the schema.
func DateKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// ParseDateKey parses a YYYY-MM-DD key back into a civil date.
func ParseDateKey(s string) (time.Time, error) {
	return time.ParseInLocation("2006-01-02", s, time.UTC)
}

// LastDayOfMonth returns the last day of the given month.
func LastDayOfMonth(year int, month time.Month) time.Time {
	return time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
}

// QuarterOf returns the quarter (1-4) for a date.
func QuarterOf(t time.Time) int {
	return (int(t.Month())-1)/3 + 1
}

func quarterStart(year, q int) time.Time {
	return time.Date(year, time.Month((q-1)*3+1), 1, 0, 0, 0, 0, time.UTC)
}

func quarterEnd(year, q int) time.Time {
	return LastDayOfMonth(year, time.Month(q*3))
}

// ensureDimensions populates dim_date and dim_period on open. The calendar
// covers two years back through the end of the current quarter; sync
// extends it lazily when it ingests dates outside that window.
func (db *DB) ensureDimensions() error {
	today := time.Now().UTC()
	start := time.Date(today.Year()-2, 1, 1, 0, 0, 0, 0, time.UTC)
	end := quarterEnd(today.Year(), QuarterOf(today))

	return db.WriteTx(context.Background(), func(tx *sql.Tx) error {
		if err := extendDimDate(tx, start, end); err != nil {
			return err
		}
		return ensureDimPeriod(tx)
	})
}

// ExtendCalendar makes sure dim_date covers the given date, growing the
// table in whole years so nearby dates do not trigger repeated extensions.
// Must be called inside the transaction that inserts the referencing row.
func ExtendCalendar(tx *sql.Tx, date time.Time) error {
	var minKey, maxKey sql.NullString
	err := tx.QueryRow("SELECT MIN(date_key), MAX(date_key) FROM dim_date").Scan(&minKey, &maxKey)
	if err != nil {
		return fmt.Errorf("failed to read dim_date bounds: %w", err)
	}
	key := DateKey(date)
	if minKey.Valid && key >= minKey.String && key <= maxKey.String {
		return nil
	}

	if !minKey.Valid {
		start := time.Date(date.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
		end := time.Date(date.Year(), 12, 31, 0, 0, 0, 0, time.UTC)
		if err := extendDimDate(tx, start, end); err != nil {
			return err
		}
		return ensureDimPeriod(tx)
	}

	if key < minKey.String {
		min, err := ParseDateKey(minKey.String)
		if err != nil {
			return fmt.Errorf("corrupt dim_date key %q: %w", minKey.String, err)
		}
		start := time.Date(date.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
		if err := extendDimDate(tx, start, min.AddDate(0, 0, -1)); err != nil {
			return err
		}
	}
	if key > maxKey.String {
		max, err := ParseDateKey(maxKey.String)
		if err != nil {
			return fmt.Errorf("corrupt dim_date key %q: %w", maxKey.String, err)
		}
		end := time.Date(date.Year(), 12, 31, 0, 0, 0, 0, time.UTC)
		if err := extendDimDate(tx, max.AddDate(0, 0, 1), end); err != nil {
			return err
		}
	}
	return ensureDimPeriod(tx)
}

func extendDimDate(tx *sql.Tx, start, end time.Time) error {
	stmt, err := tx.Prepare(`INSERT OR IGNORE INTO dim_date (
		date_key, year, quarter, month, week, day_of_week, day_of_month,
		day_of_year, is_weekend, is_first_day_of_month, is_last_day_of_month,
		is_first_day_of_quarter, is_last_day_of_quarter,
		year_key, half_key, quarter_key, month_key, week_key,
		day_of_quarter, day_of_half,
		prior_year_date_key, prior_quarter_date_key, prior_month_date_key
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare dim_date insert: %w", err)
	}
	defer stmt.Close()

	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		q := QuarterOf(d)
		half := 1
		if q > 2 {
			half = 2
		}
		isoYear, isoWeek := d.ISOWeek()
		dow := int(d.Weekday())
		if dow == 0 {
			dow = 7 // 1=Mon .. 7=Sun
		}

		qs := quarterStart(d.Year(), q)
		hs := time.Date(d.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
		if half == 2 {
			hs = time.Date(d.Year(), 7, 1, 0, 0, 0, 0, time.UTC)
		}
		dayOfQuarter := int(d.Sub(qs).Hours() / 24)
		dayOfHalf := int(d.Sub(hs).Hours() / 24)

		lastOfMonth := LastDayOfMonth(d.Year(), d.Month())
		qe := quarterEnd(d.Year(), q)

		boolInt := func(b bool) int {
			if b {
				return 1
			}
			return 0
		}

		_, err := stmt.Exec(
			DateKey(d),
			d.Year(),
			q,
			int(d.Month()),
			isoWeek,
			dow,
			d.Day(),
			d.YearDay(),
			boolInt(dow >= 6),
			boolInt(d.Day() == 1),
			boolInt(d.Equal(lastOfMonth)),
			boolInt(d.Equal(qs)),
			boolInt(d.Equal(qe)),
			fmt.Sprintf("%d", d.Year()),
			fmt.Sprintf("%d-H%d", d.Year(), half),
			fmt.Sprintf("%d-Q%d", d.Year(), q),
			fmt.Sprintf("%d-%02d", d.Year(), int(d.Month())),
			fmt.Sprintf("%d-W%02d", isoYear, isoWeek),
			dayOfQuarter,
			dayOfHalf,
			priorYearDateKey(d),
			priorQuarterDateKey(d, dayOfQuarter),
			priorMonthDateKey(d),
		)
		if err != nil {
			return fmt.Errorf("failed to insert dim_date row for %s: %w", DateKey(d), err)
		}
	}
	return nil
}

// priorYearDateKey returns the same calendar day one year earlier, or NULL
// when that day does not exist (Feb 29).
func priorYearDateKey(d time.Time) any {
	prior := time.Date(d.Year()-1, d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	if prior.Month() != d.Month() || prior.Day() != d.Day() {
		return nil
	}
	return DateKey(prior)
}

// priorQuarterDateKey returns the same day-of-quarter offset in the prior
// quarter, clamped to the prior quarter's last day.
func priorQuarterDateKey(d time.Time, dayOfQuarter int) any {
	q := QuarterOf(d)
	py, pq := d.Year(), q-1
	if q == 1 {
		py, pq = d.Year()-1, 4
	}
	pqs := quarterStart(py, pq)
	pqe := quarterEnd(py, pq)
	target := pqs.AddDate(0, 0, dayOfQuarter)
	if target.After(pqe) {
		target = pqe
	}
	return DateKey(target)
}

// priorMonthDateKey returns the same day-of-month in the prior month,
// clamped to the prior month's last day.
func priorMonthDateKey(d time.Time) any {
	py, pm := d.Year(), d.Month()-1
	if d.Month() == time.January {
		py, pm = d.Year()-1, time.December
	}
	last := LastDayOfMonth(py, pm)
	day := d.Day()
	if day > last.Day() {
		day = last.Day()
	}
	return DateKey(time.Date(py, pm, day, 0, 0, 0, 0, time.UTC))
}

var monthLabels = [...]string{
	"January", "February", "March", "April", "May", "June",
	"July", "August", "September", "October", "November", "December",
}

// ensureDimPeriod fills dim_period for every year present in dim_date.
// INSERT OR IGNORE keeps it idempotent across calendar extensions.
func ensureDimPeriod(tx *sql.Tx) error {
	var minYear, maxYear sql.NullInt64
	err := tx.QueryRow("SELECT MIN(year), MAX(year) FROM dim_date").Scan(&minYear, &maxYear)
	if err != nil {
		return fmt.Errorf("failed to read dim_date year range: %w", err)
	}
	if !minYear.Valid {
		return nil
	}

	stmt, err := tx.Prepare(`INSERT OR IGNORE INTO dim_period (
		period_key, period_type, label, start_date, end_date,
		days_in_period, prior_period_key
	) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare dim_period insert: %w", err)
	}
	defer stmt.Close()

	insert := func(key, ptype, label string, start, end time.Time, prior string) error {
		days := int(end.Sub(start).Hours()/24) + 1
		_, err := stmt.Exec(key, ptype, label, DateKey(start), DateKey(end), days, prior)
		return err
	}

	for year := int(minYear.Int64); year <= int(maxYear.Int64); year++ {
		ys := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
		ye := time.Date(year, 12, 31, 0, 0, 0, 0, time.UTC)
		if err := insert(fmt.Sprintf("%d", year), "year", fmt.Sprintf("%d", year), ys, ye, fmt.Sprintf("%d", year-1)); err != nil {
			return fmt.Errorf("failed to insert year period: %w", err)
		}

		for h := 1; h <= 2; h++ {
			hs := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
			he := time.Date(year, 6, 30, 0, 0, 0, 0, time.UTC)
			prior := fmt.Sprintf("%d-H2", year-1)
			if h == 2 {
				hs = time.Date(year, 7, 1, 0, 0, 0, 0, time.UTC)
				he = ye
				prior = fmt.Sprintf("%d-H1", year)
			}
			key := fmt.Sprintf("%d-H%d", year, h)
			label := fmt.Sprintf("H%d %d", h, year)
			if err := insert(key, "half", label, hs, he, prior); err != nil {
				return fmt.Errorf("failed to insert half period: %w", err)
			}
		}

		for q := 1; q <= 4; q++ {
			prior := fmt.Sprintf("%d-Q%d", year, q-1)
			if q == 1 {
				prior = fmt.Sprintf("%d-Q4", year-1)
			}
			key := fmt.Sprintf("%d-Q%d", year, q)
			label := fmt.Sprintf("Q%d %d", q, year)
			if err := insert(key, "quarter", label, quarterStart(year, q), quarterEnd(year, q), prior); err != nil {
				return fmt.Errorf("failed to insert quarter period: %w", err)
			}
		}

		for m := time.January; m <= time.December; m++ {
			ms := time.Date(year, m, 1, 0, 0, 0, 0, time.UTC)
			me := LastDayOfMonth(year, m)
			prior := fmt.Sprintf("%d-%02d", year, int(m)-1)
			if m == time.January {
				prior = fmt.Sprintf("%d-12", year-1)
			}
			key := fmt.Sprintf("%d-%02d", year, int(m))
			label := fmt.Sprintf("%s %d", monthLabels[m-1], year)
			if err := insert(key, "month", label, ms, me, prior); err != nil {
				return fmt.Errorf("failed to insert month period: %w", err)
			}
		}

		// ISO weeks overlapping this year, starting with the week that
		// contains Jan 1 (whose Monday may fall in the prior year).
		ws := firstISOMonday(year)
		for d := ws; d.Year() == year || (d.Year() == year-1 && d.AddDate(0, 0, 6).Year() == year); d = d.AddDate(0, 0, 7) {
			wy, ww := d.ISOWeek()
			we := d.AddDate(0, 0, 6)
			priorStart := d.AddDate(0, 0, -7)
			py, pw := priorStart.ISOWeek()
			key := fmt.Sprintf("%d-W%02d", wy, ww)
			label := fmt.Sprintf("Week %d, %d", ww, wy)
			prior := fmt.Sprintf("%d-W%02d", py, pw)
			if err := insert(key, "week", label, d, we, prior); err != nil {
				return fmt.Errorf("failed to insert week period: %w", err)
			}
			if we.Year() > year {
				break
			}
		}
	}
	return nil
}

// firstISOMonday returns the Monday of the ISO week containing Jan 1.
func firstISOMonday(year int) time.Time {
	d := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	for d.Weekday() != time.Monday {
		d = d.AddDate(0, 0, -1)
	}
	return d
}
