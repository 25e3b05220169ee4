package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

var ErrUnknownDay = errors.New("unrecognized day expression")

var monthNames = []string{
	"enero", "febrero", "marzo", "abril", "mayo", "junio", "julio",
	"agosto", "septiembre", "octubre", "noviembre", "diciembre",
}

var monthIndex = map[string]time.Month{"setiembre": time.September}

func init() {
	for i, m := range monthNames {
		monthIndex[m] = time.Month(i + 1)
	}
}

var weekdays = map[string]time.Weekday{
	"domingo": time.Sunday, "lunes": time.Monday, "martes": time.Tuesday,
	"miercoles": time.Wednesday, "jueves": time.Thursday, "viernes": time.Friday,
	"sabado": time.Saturday,
}

var weekdayLabels = map[string]string{"miercoles": "miércoles", "sabado": "sábado"}

const (
	monthAlt   = `enero|febrero|marzo|abril|mayo|junio|julio|agosto|septiembre|setiembre|octubre|noviembre|diciembre`
	weekdayAlt = `lunes|martes|miercoles|jueves|viernes|sabado|domingo`
)

var (
	reDayOfMonth     = regexp.MustCompile(`\b([0-3]?\d)\s+de\s+(` + monthAlt + `)\b`)
	reNumericDate    = regexp.MustCompile(`\b([0-3]?\d)/([01]?\d)\b`)
	reNextWeekday    = regexp.MustCompile(`\bproximo\s+(` + weekdayAlt + `)\b`)
	reWeekdayComing  = regexp.MustCompile(`\b(` + weekdayAlt + `)\s+que\s+viene\b`)
	reThisWeekday    = regexp.MustCompile(`\beste\s+(` + weekdayAlt + `)\b`)
	reWeekday        = regexp.MustCompile(`\b(` + weekdayAlt + `)\b`)
	reAfterTomorrow  = regexp.MustCompile(`\bpasado\s+manana\b`)
	reTomorrow       = regexp.MustCompile(`\bmanana\b`)
	reMorningArticle = regexp.MustCompile(`\b(?:la|esta)\s*$`)
	reToday          = regexp.MustCompile(`\b(?:hoy|esta\s+noche)\b`)
)

func weekdayLabel(w string) string {
	if l, ok := weekdayLabels[w]; ok {
		return l
	}
	return w
}

// Day extracts a symbolic day: "15 de octubre", "próximo viernes",
// "viernes", "pasado mañana", "mañana" or "hoy". First pattern wins.
func Day(text string) (string, bool) {
	f := fold(text).lower

	if m := reDayOfMonth.FindStringSubmatch(f); m != nil {
		if d, err := strconv.Atoi(m[1]); err == nil && d >= 1 && d <= 31 {
			month := m[2]
			if month == "setiembre" {
				month = "septiembre"
			}
			return fmt.Sprintf("%d de %s", d, month), true
		}
	}
	if m := reNumericDate.FindStringSubmatch(f); m != nil {
		d, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		if d >= 1 && d <= 31 && mo >= 1 && mo <= 12 {
			return fmt.Sprintf("%d de %s", d, monthNames[mo-1]), true
		}
	}

	if m := reNextWeekday.FindStringSubmatch(f); m != nil {
		return "próximo " + weekdayLabel(m[1]), true
	}
	if m := reWeekdayComing.FindStringSubmatch(f); m != nil {
		return "próximo " + weekdayLabel(m[1]), true
	}
	if m := reThisWeekday.FindStringSubmatch(f); m != nil {
		return weekdayLabel(m[1]), true
	}
	if m := reWeekday.FindStringSubmatch(f); m != nil {
		return weekdayLabel(m[1]), true
	}

	if reAfterTomorrow.MatchString(f) {
		return "pasado mañana", true
	}
	for _, loc := range reTomorrow.FindAllStringIndex(f, -1) {
		// "a la mañana" is a time of day, not tomorrow
		if reMorningArticle.MatchString(f[:loc[0]]) {
			continue
		}
		return "mañana", true
	}
	if reToday.MatchString(f) {
		return "hoy", true
	}
	return "", false
}

// ResolveDate maps a symbolic day produced by Day to a calendar date in
// now's location. Bare weekdays resolve to the next occurrence including
// today; "próximo" excludes today. Past day-of-month dates roll over to
// next year.
func ResolveDate(day string, now time.Time) (time.Time, error) {
	f := strings.TrimSpace(fold(day).lower)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	switch f {
	case "hoy":
		return today, nil
	case "manana":
		return today.AddDate(0, 0, 1), nil
	case "pasado manana":
		return today.AddDate(0, 0, 2), nil
	}

	if m := reDayOfMonth.FindStringSubmatch(f); m != nil {
		d, _ := strconv.Atoi(m[1])
		month := monthIndex[m[2]]
		date := time.Date(now.Year(), month, d, 0, 0, 0, 0, now.Location())
		if date.Day() != d {
			return time.Time{}, errors.Wrapf(ErrUnknownDay, "invalid date %q", day)
		}
		if date.Before(today) {
			date = date.AddDate(1, 0, 0)
		}
		return date, nil
	}

	strict := false
	if rest, ok := strings.CutPrefix(f, "proximo "); ok {
		strict = true
		f = rest
	}
	wd, ok := weekdays[f]
	if !ok {
		return time.Time{}, errors.Wrapf(ErrUnknownDay, "%q", day)
	}
	diff := (int(wd) - int(today.Weekday()) + 7) % 7
	if diff == 0 && strict {
		diff = 7
	}
	return today.AddDate(0, 0, diff), nil
}
