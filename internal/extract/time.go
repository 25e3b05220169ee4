package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	reClock      = regexp.MustCompile(`\b([01]?\d|2[0-3])[:.]([0-5]\d)\s*(?:hs|h)?\b`)
	reHourSuffix = regexp.MustCompile(`\b([01]?\d|2[0-3])\s*(?:hs|h|horas)\b`)
	reAtHour     = regexp.MustCompile(`\b(?:a|para|tipo|desde|tipo a)\s+las?\s+(\d{1,2}|` + numberWordAlt + `)(?:\s+y\s+(media|cuarto))?\b`)

	reNotAnHour    = regexp.MustCompile(`^\s*(?:[:.]\d|personas?\b|comensales\b|pers\b)`)
	reEveningCue   = regexp.MustCompile(`\b(?:noche|cena|cenar|pm|de\s+la\s+tarde)\b`)
	reMidnightHint = regexp.MustCompile(`^\s*(?:de\s+la\s+noche|de\s+la\s+madrugada|en\s+punto\s+de\s+la\s+noche)`)
)

type span struct{ start, end int }

func overlaps(spans []span, start, end int) bool {
	for _, s := range spans {
		if start < s.end && s.start < end {
			return true
		}
	}
	return false
}

type timeMatch struct {
	start   int
	hour    int
	minute  int
	colloq  bool // "a las N": hour may be on a 12h clock
	trailer string
}

// Time returns the last time mentioned in text as "HH:MM". Minute-less
// "a las N" hours below 12 move to the evening when the text carries an
// evening cue; "hs" values are already on a 24h clock.
func Time(text string) (string, bool) {
	f := fold(text).lower

	// More explicit patterns claim their span first.
	var matches []timeMatch
	var taken []span
	for _, m := range reClock.FindAllStringSubmatchIndex(f, -1) {
		if strings.HasSuffix(strings.TrimSpace(f[:m[0]]), "$") {
			taken = append(taken, span{m[0], m[1]})
			continue
		}
		h, _ := strconv.Atoi(f[m[2]:m[3]])
		mm, _ := strconv.Atoi(f[m[4]:m[5]])
		matches = append(matches, timeMatch{start: m[0], hour: h, minute: mm})
		taken = append(taken, span{m[0], m[1]})
	}
	for _, m := range reHourSuffix.FindAllStringSubmatchIndex(f, -1) {
		if overlaps(taken, m[0], m[1]) {
			continue
		}
		h, _ := strconv.Atoi(f[m[2]:m[3]])
		matches = append(matches, timeMatch{start: m[0], hour: h})
		taken = append(taken, span{m[0], m[1]})
	}
	for _, m := range reAtHour.FindAllStringSubmatchIndex(f, -1) {
		trailer := f[m[1]:]
		if reNotAnHour.MatchString(trailer) || overlaps(taken, m[0], m[1]) {
			continue
		}
		h, ok := parseNumber(f[m[2]:m[3]])
		if !ok || h > 23 {
			continue
		}
		tm := timeMatch{start: m[0], hour: h, colloq: true, trailer: trailer}
		if m[4] >= 0 {
			switch f[m[4]:m[5]] {
			case "media":
				tm.minute = 30
			case "cuarto":
				tm.minute = 15
			}
		}
		matches = append(matches, tm)
	}
	if len(matches) == 0 {
		return "", false
	}

	last := matches[0]
	for _, m := range matches[1:] {
		if m.start > last.start {
			last = m
		}
	}

	hour := last.hour
	if last.colloq {
		switch {
		case hour == 12 && reMidnightHint.MatchString(last.trailer):
			hour = 0
		case hour < 12 && reEveningCue.MatchString(f):
			hour += 12
		}
	}
	return fmt.Sprintf("%02d:%02d", hour, last.minute), true
}

// Minutes converts "HH:MM" into minutes after midnight.
func Minutes(hhmm string) (int, bool) {
	if len(hhmm) != 5 || hhmm[2] != ':' {
		return 0, false
	}
	h, err1 := strconv.Atoi(hhmm[:2])
	m, err2 := strconv.Atoi(hhmm[3:])
	if err1 != nil || err2 != nil || h > 23 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}
