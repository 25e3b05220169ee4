package extract

import "regexp"

const (
	MinPartySize = 1
	MaxPartySize = 20
)

const sizeGroup = `(\d{1,3}|` + numberWordAlt + `)`

// Ordered from most to least specific; "para N" alone is the weakest.
var partyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b` + sizeGroup + `\s*(?:personas?|pers|comensales|adultos|invitados|pax)\b`),
	regexp.MustCompile(`\b(?:seriamos|somos|seremos|vamos\s+a\s+ser|vamos)\s+` + sizeGroup + `\b`),
	regexp.MustCompile(`\bmesa\s+(?:para|de)\s+` + sizeGroup + `\b`),
	regexp.MustCompile(`\bpara\s+` + sizeGroup + `\b`),
}

var reNotASize = regexp.MustCompile(`^\s*(?:[:.]\d|hs\b|h\b|horas\b|de\s+(?:` + monthAlt + `)\b|/\d|\s+(?:mesa|reserva|vez)\b)`)

// PartySize extracts the number of guests. Values outside
// [MinPartySize, MaxPartySize] are ignored so phone digits or amounts are
// never taken as a party size.
func PartySize(text string) (int, bool) {
	f := fold(text).lower
	for _, re := range partyPatterns {
		for _, m := range re.FindAllStringSubmatchIndex(f, -1) {
			if reNotASize.MatchString(f[m[1]:]) {
				continue
			}
			n, ok := parseNumber(f[m[2]:m[3]])
			if !ok || n < MinPartySize || n > MaxPartySize {
				continue
			}
			return n, true
		}
	}
	return 0, false
}
