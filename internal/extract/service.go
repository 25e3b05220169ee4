package extract

import (
	"regexp"

	"github.com/Alvaro-gonzalez05/ChatbotManagerLaBIRRITA-sub000/internal/models"
)

var (
	reDinnerWords = regexp.MustCompile(`\b(?:cena|cenar|cenamos|cenita|comer|comida)\b`)
	reDanceWords  = regexp.MustCompile(`\b(?:baile|bailar|bailamos|boliche|disco|pista|after)\b`)
)

// Service bands in minutes after midnight.
const (
	dinnerBandStart = 20*60 + 30
	dinnerBandEnd   = 23*60 + 59
	danceBandEnd    = 6 * 60
	lateDinnerStart = 23 * 60
)

// RequestedService returns the service explicitly named in the text. When
// both vocabularies appear, the later mention wins.
func RequestedService(text string) (models.ServiceType, bool) {
	f := fold(text).lower
	dinner := lastIndex(reDinnerWords, f)
	dance := lastIndex(reDanceWords, f)
	switch {
	case dinner < 0 && dance < 0:
		return "", false
	case dance > dinner:
		return models.ServiceDance, true
	default:
		return models.ServiceDinner, true
	}
}

func lastIndex(re *regexp.Regexp, s string) int {
	all := re.FindAllStringIndex(s, -1)
	if len(all) == 0 {
		return -1
	}
	return all[len(all)-1][0]
}

// ServiceForTime applies the business-hour bands: dance from 00:00 to
// 06:00, dinner otherwise.
func ServiceForTime(hhmm string) (models.ServiceType, bool) {
	mins, ok := Minutes(hhmm)
	if !ok {
		return "", false
	}
	if mins <= danceBandEnd {
		return models.ServiceDance, true
	}
	return models.ServiceDinner, true
}

// ResolveService combines an explicit request with the time band. Dance
// requested inside the dinner band only holds from 23:00 on; any other
// explicit request wins over the band.
func ResolveService(requested models.ServiceType, hhmm string) (models.ServiceType, bool) {
	band, hasTime := ServiceForTime(hhmm)
	switch {
	case !hasTime:
		return requested, requested != ""
	case requested == "":
		return band, true
	case requested == models.ServiceDance && band == models.ServiceDinner:
		mins, _ := Minutes(hhmm)
		if mins >= lateDinnerStart {
			return models.ServiceDance, true
		}
		return models.ServiceDinner, true
	default:
		return requested, true
	}
}

// InDinnerBand reports whether hhmm falls in the core dinner window.
func InDinnerBand(hhmm string) bool {
	mins, ok := Minutes(hhmm)
	return ok && mins >= dinnerBandStart && mins <= dinnerBandEnd
}
