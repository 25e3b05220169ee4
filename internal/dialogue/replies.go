package dialogue

import (
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/Alvaro-gonzalez05/ChatbotManagerLaBIRRITA-sub000/internal/models"
	"github.com/Alvaro-gonzalez05/ChatbotManagerLaBIRRITA-sub000/internal/payment"
)

// Customer facing texts. All replies are Rioplatense Spanish.

func welcomeText(b *models.Business, senderName string) string {
	greeting := "¡Hola!"
	if first := firstName(senderName); first != "" {
		greeting = "¡Hola " + first + "!"
	}
	return fmt.Sprintf("%s Soy el asistente de reservas de %s.", greeting, b.Name)
}

func introText() string {
	return "Puedo tomar tu reserva para cena o baile. Contame qué día, para cuántas personas y qué te gustaría."
}

func greetingAckText(senderName string) string {
	if first := firstName(senderName); first != "" {
		return "¡Hola de nuevo, " + first + "!"
	}
	return "¡Hola de nuevo!"
}

func restartText() string {
	return "Listo, dejé de lado la reserva anterior."
}

func helpText() string {
	return "No te entendí del todo. Para reservar decime el día, cuántas personas son y si es para cena o baile."
}

var slotQuestions = map[models.Slot]string{
	models.SlotDay:       "qué día querés venir",
	models.SlotPartySize: "para cuántas personas es",
	models.SlotService:   "si es para cena o baile",
}

func askSlotsText(d models.ReservationDraft, missing []models.Slot) string {
	questions := make([]string, 0, len(missing))
	for _, s := range missing {
		questions = append(questions, slotQuestions[s])
	}
	var sb strings.Builder
	if known := summary(d); known != "" {
		sb.WriteString("Anoté: " + known + ". ")
	} else {
		sb.WriteString("¡Genial! ")
	}
	sb.WriteString("Para avanzar con la reserva necesito saber " + joinSpanish(questions) + ".")
	return sb.String()
}

func askNameText(d models.ReservationDraft) string {
	return fmt.Sprintf("Perfecto: %s. ¿A nombre de quién hago la reserva?", summary(d))
}

func missingBeforePaymentText(d models.ReservationDraft) string {
	return "Antes de la seña necesito completar tu reserva. " + missingList(d)
}

func referenceHeldText(ref string, d models.ReservationDraft) string {
	return fmt.Sprintf("Guardé el número de operación %s y lo verifico apenas tenga tu reserva completa. %s", ref, missingList(d))
}

func missingList(d models.ReservationDraft) string {
	if core := coreMissing(d); len(core) > 0 {
		questions := make([]string, 0, len(core))
		for _, s := range core {
			questions = append(questions, slotQuestions[s])
		}
		return "Decime " + joinSpanish(questions) + "."
	}
	return "¿A nombre de quién hago la reserva?"
}

func depositTransferText(d models.ReservationDraft, amount float64, currency, alias string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "¡Gracias %s! Tu reserva: %s.\n", firstName(d.CustomerName), summary(d))
	fmt.Fprintf(&sb, "Para confirmarla necesitamos una seña de %s (%d × %s).\n",
		formatMoney(amount, currency), d.PartySize, formatMoney(amount/float64(d.PartySize), currency))
	if alias != "" {
		fmt.Fprintf(&sb, "Podés transferir al alias %s. ", alias)
	} else {
		sb.WriteString("Podés transferir a la cuenta del local. ")
	}
	sb.WriteString("Cuando lo hagas, mandame el número de operación o ID de la transferencia.")
	return sb.String()
}

func depositLinkText(d models.ReservationDraft, amount float64, currency, link string) string {
	return fmt.Sprintf("¡Gracias %s! Tu reserva: %s.\nPara confirmarla necesitamos una seña de %s. Podés pagarla acá: %s\nApenas se acredite te confirmo la reserva.",
		firstName(d.CustomerName), summary(d), formatMoney(amount, currency), link)
}

func depositDescription(b *models.Business, d models.ReservationDraft) string {
	return fmt.Sprintf("Seña reserva %s - %s", b.Name, summary(d))
}

func paymentReminderText(amount float64, currency string) string {
	if amount <= 0 {
		return "Estoy esperando el número de operación de la seña para confirmar tu reserva."
	}
	return fmt.Sprintf("Estoy esperando el número de operación de la seña de %s para confirmar tu reserva.", formatMoney(amount, currency))
}

func askReferenceText(amount float64, currency string, claimed float64) string {
	if claimed > 0 {
		return fmt.Sprintf("¡Gracias! Para verificar tu pago de %s mandame el número de operación o ID de la transferencia.", formatMoney(claimed, currency))
	}
	return "¡Gracias! " + paymentReminderText(amount, currency)
}

func attachmentWithoutReferenceText() string {
	return "Recibí la imagen. Para verificar el pago necesito que me escribas el número de operación que figura en el comprobante."
}

func amountMismatchText(expected, received float64, currency string) string {
	return fmt.Sprintf("Encontré el pago, pero el monto es %s y la seña es de %s. Revisalo y mandame el número de operación correcto, o escribinos si pagaste de más.",
		formatMoney(received, currency), formatMoney(expected, currency))
}

func notApprovedText(status string) string {
	switch status {
	case payment.StatusPending:
		return "El pago todavía figura como pendiente. Cuando se acredite, mandame de nuevo el número de operación."
	case payment.StatusRejected:
		return "El pago figura como rechazado. Probá de nuevo y mandame el número de la nueva operación."
	}
	return fmt.Sprintf("El pago no está aprobado (estado: %s). Si creés que es un error, escribinos.", status)
}

func notFoundText(ref string) string {
	return fmt.Sprintf("No encontré ningún pago con el número %s. ¿Podés revisarlo y mandármelo de nuevo?", ref)
}

func referenceUsedText(ref string) string {
	return fmt.Sprintf("El número de operación %s ya fue usado para otra reserva. Revisá el comprobante y mandame el correcto.", ref)
}

func referenceUsedEarlierText(ref string, r *models.Reservation) string {
	return fmt.Sprintf("El número de operación %s ya pagó tu reserva %s del %s. Para esta nueva reserva necesito el comprobante de otra seña.", ref, r.Code, r.Day)
}

func gatewayUnavailableText() string {
	return "Perdón, no pude verificar el pago en este momento. Guardé el número de operación; mandame cualquier mensaje en unos minutos y lo reviso de nuevo."
}

// CommitFailedText is sent when money moved but the reservation could not
// be stored.
func CommitFailedText() string {
	return "¡Recibimos tu pago! Tuvimos un problema al registrar la reserva, pero ya avisamos al equipo y te la confirman a la brevedad."
}

// ApologyText is sent when a turn could not be processed at all.
func ApologyText() string {
	return "Perdón, tuve un problema procesando tu mensaje. ¿Me lo podés repetir?"
}

// ConfirmationText announces a committed reservation.
func ConfirmationText(b *models.Business, r *models.Reservation) string {
	d := models.ReservationDraft{
		CustomerName: r.CustomerName,
		Day:          r.Day,
		Time:         r.Time,
		PartySize:    r.PartySize,
		ServiceType:  r.ServiceType,
	}
	return fmt.Sprintf("¡Reserva confirmada, %s! 🎉\n%s.\nCódigo: %s. Seña recibida: %s.\n¡Te esperamos en %s!",
		firstName(r.CustomerName), summary(d), r.Code, formatMoney(r.PaidAmount, r.Currency), b.Name)
}

// OutcomeText explains a verification that was not accepted.
func OutcomeText(v payment.Verification, currency string) string {
	switch v.Outcome {
	case payment.AmountMismatch:
		return amountMismatchText(v.Expected, v.Payment.Amount, currency)
	case payment.NotApproved:
		return notApprovedText(v.Payment.Status)
	case payment.NotFound:
		return notFoundText(v.Reference)
	}
	return ""
}

// summary echoes the known slots: "viernes, 4 personas, cena a las 21:00".
func summary(d models.ReservationDraft) string {
	var parts []string
	if d.Day != "" {
		parts = append(parts, d.Day)
	}
	if d.PartySize == 1 {
		parts = append(parts, "1 persona")
	} else if d.PartySize > 1 {
		parts = append(parts, fmt.Sprintf("%d personas", d.PartySize))
	}
	switch {
	case d.ServiceType != "" && d.Time != "":
		parts = append(parts, d.ServiceType.Label()+" a las "+d.Time)
	case d.ServiceType != "":
		parts = append(parts, d.ServiceType.Label())
	case d.Time != "":
		parts = append(parts, "a las "+d.Time)
	}
	return strings.Join(parts, ", ")
}

func joinSpanish(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	}
	return strings.Join(items[:len(items)-1], ", ") + " y " + items[len(items)-1]
}

func firstName(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return ""
	}
	for _, r := range fields[0] {
		if r >= '0' && r <= '9' || r == '+' {
			return ""
		}
	}
	return fields[0]
}

// formatMoney renders amounts the Argentine way: "$20.000" or "$1.500,50".
func formatMoney(amount float64, currency string) string {
	p := message.NewPrinter(language.MustParse("es-AR"))
	var num string
	if amount == math.Trunc(amount) {
		num = p.Sprintf("%d", int64(amount))
	} else {
		num = p.Sprintf("%.2f", amount)
	}
	if currency == "" || currency == "ARS" {
		return "$" + num
	}
	return currency + " " + num
}
