package extract

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const maxNameWords = 2

var (
	reNameCue  = regexp.MustCompile(`\b(?:soy|me\s+llamo|mi\s+nombre\s+es|a\s+nombre\s+de|les\s+habla|te\s+habla|habla)\s+([a-z]+(?:\s+[a-z]+){0,3})`)
	reBareName = regexp.MustCompile(`^[a-z]+(?:\s+[a-z]+)?$`)
)

// nameStoplist holds words that can follow "soy" or stand alone on a line
// without being a name.
var nameStoplist = map[string]bool{}

func init() {
	for _, w := range strings.Fields(`
		hola holaa buenas buenos buen dia dias tardes noches que tal hey holis
		si no ok okay dale gracias perfecto listo bueno claro genial joya barbaro
		buenisimo excelente obvio seguro exacto correcto
		y o de del el la los las un una para con a al en que por mi me yo
		quiero queria quisiera necesito busco reservar reserva reservas mesa lugar
		persona personas cena cenar baile bailar boliche pista after comer
		hoy manana pasado proximo este esta noche
		lunes martes miercoles jueves viernes sabado domingo
		cliente nuevo nueva otra otro socio
		pago pague transferencia transferi comprobante sena abone
	`) {
		nameStoplist[w] = true
	}
}

// Name extracts the customer's name. Cue phrases ("soy", "me llamo", ...)
// are tried first; when allowBareLine is set a line holding only one or
// two alphabetic words is also accepted. Stoplisted words end the name.
func Name(text string, allowBareLine bool) (string, bool) {
	f := fold(text)

	if m := reNameCue.FindStringSubmatchIndex(f.lower); m != nil {
		if name, ok := nameFrom(f, m[2], m[3]); ok {
			return name, true
		}
	}

	if !allowBareLine {
		return "", false
	}
	offset := 0
	for _, line := range strings.Split(f.lower, "\n") {
		start := offset
		offset += len(line) + 1

		trimmed := strings.TrimSpace(strings.Trim(line, ".!¡,"))
		if !reBareName.MatchString(trimmed) {
			continue
		}
		lead := strings.Index(line, trimmed)
		if name, ok := nameFrom(f, start+lead, start+lead+len(trimmed)); ok && !hasStopword(trimmed) {
			return name, true
		}
	}
	return "", false
}

// nameFrom keeps the leading non-stoplisted words of lower[start:end],
// capped at maxNameWords, in their original spelling.
func nameFrom(f folded, start, end int) (string, bool) {
	var words []string
	pos := start
	for _, w := range strings.Fields(f.lower[start:end]) {
		idx := strings.Index(f.lower[pos:end], w) + pos
		pos = idx + len(w)
		if nameStoplist[w] || len(words) == maxNameWords {
			break
		}
		words = append(words, f.original(idx, idx+len(w)))
	}
	if len(words) == 0 {
		return "", false
	}
	return cases.Title(language.Spanish).String(strings.Join(words, " ")), true
}

func hasStopword(s string) bool {
	for _, w := range strings.Fields(s) {
		if nameStoplist[w] {
			return true
		}
	}
	return false
}
