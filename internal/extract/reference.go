package extract

import (
	"regexp"
	"strings"
)

const minReferenceLen = 8

var (
	reReferenceCue = regexp.MustCompile(`\b(?:transferencia|pago|id|referencia|ref|operacion|comprobante|nro|numero|codigo)\b`)
	reLongDigits   = regexp.MustCompile(`\b\d{10,20}\b`)
	reGatewayCode  = regexp.MustCompile(`\b[a-z0-9][a-z0-9_\-]{7,63}\b`)
	reToken        = regexp.MustCompile(`[a-z0-9_\-]+`)
	reHasDigit     = regexp.MustCompile(`\d`)
	reHasLetter    = regexp.MustCompile(`[a-z]`)
)

// Words that turn a candidate into a false positive when found inside it.
var referenceStoplist = []string{
	"lunes", "martes", "miercoles", "jueves", "viernes", "sabado", "domingo",
	"hola", "buenas", "gracias", "persona", "reserva", "manana", "noche",
	"cena", "baile", "transferencia", "comprobante",
}

// TransferReference finds a payment reference: a token right after a cue
// word, a run of 10-20 digits, or a gateway-style code mixing letters and
// digits. The original casing is preserved.
func TransferReference(text string) (string, bool) {
	f := fold(text)

	for _, cue := range reReferenceCue.FindAllStringIndex(f.lower, -1) {
		window := f.lower[cue[1]:]
		if len(window) > 40 {
			window = window[:40]
		}
		for _, tok := range reToken.FindAllStringIndex(window, 4) {
			cand := window[tok[0]:tok[1]]
			if !reHasDigit.MatchString(cand) {
				continue
			}
			if validReference(cand) {
				start := cue[1] + tok[0]
				return f.original(start, start+len(cand)), true
			}
			break
		}
	}

	if loc := reLongDigits.FindStringIndex(f.lower); loc != nil {
		return f.original(loc[0], loc[1]), true
	}

	for _, loc := range reGatewayCode.FindAllStringIndex(f.lower, -1) {
		cand := f.lower[loc[0]:loc[1]]
		if reHasDigit.MatchString(cand) && reHasLetter.MatchString(cand) && validReference(cand) {
			return f.original(loc[0], loc[1]), true
		}
	}
	return "", false
}

func validReference(lower string) bool {
	if len(lower) < minReferenceLen {
		return false
	}
	for _, w := range referenceStoplist {
		if strings.Contains(lower, w) {
			return false
		}
	}
	return true
}
