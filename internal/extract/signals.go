package extract

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	reGreeting          = regexp.MustCompile(`\b(?:hola+|holis|buenas|buen\s+dia|buenos\s+dias|buenas\s+tardes|buenas\s+noches|que\s+tal|hey)\b`)
	reReservationIntent = regexp.MustCompile(`\b(?:reserv[a-z]*|mesa|lugar|turno)\b`)
	rePaymentWords      = regexp.MustCompile(`\b(?:pague|pagado|pago|pagamos|pagar|transferi|transferimos|transferencia|comprobante|sena|abone|abonamos|deposite|deposito)\b`)
	reNewConversation   = regexp.MustCompile(`\b(?:nueva\s+reserva|otra\s+reserva|empezar\s+de\s+nuevo|empecemos\s+de\s+nuevo|desde\s+cero|cancelar|cancela|olvidate)\b`)
	reAmountSign        = regexp.MustCompile(`\$\s*(\d{1,3}(?:\.\d{3})+|\d+)(?:,(\d{1,2}))?`)
	reAmountWord        = regexp.MustCompile(`\b(\d{1,3}(?:\.\d{3})+|\d+)(?:,(\d{1,2}))?\s*(?:pesos|ars)\b`)
)

// Signals are the intent cues of one turn.
type Signals struct {
	Greeting          bool
	ReservationIntent bool
	PaymentIntent     bool
	NewConversation   bool
	ClaimedAmount     float64
}

// Classify detects intent cues. A monetary amount counts as payment intent.
func Classify(text string) Signals {
	f := fold(text).lower
	s := Signals{
		Greeting:          reGreeting.MatchString(f),
		ReservationIntent: reReservationIntent.MatchString(f),
		PaymentIntent:     rePaymentWords.MatchString(f),
		NewConversation:   reNewConversation.MatchString(f),
	}
	if amount, ok := Amount(text); ok {
		s.ClaimedAmount = amount
		s.PaymentIntent = true
	}
	return s
}

// Amount parses "$20.000", "$ 1500,50" or "20000 pesos".
func Amount(text string) (float64, bool) {
	f := fold(text).lower
	m := reAmountSign.FindStringSubmatch(f)
	if m == nil {
		m = reAmountWord.FindStringSubmatch(f)
	}
	if m == nil {
		return 0, false
	}
	num := strings.ReplaceAll(m[1], ".", "")
	if m[2] != "" {
		num += "." + m[2]
	}
	v, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
