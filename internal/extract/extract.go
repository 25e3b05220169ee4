package extract

import "github.com/Alvaro-gonzalez05/ChatbotManagerLaBIRRITA-sub000/internal/models"

// Intent tags stored in the rolling history.
const (
	IntentPayment         = "payment"
	IntentReservation     = "reservation"
	IntentName            = "name"
	IntentGreeting        = "greeting"
	IntentNewConversation = "new_conversation"
	IntentOther           = "other"
)

// Slots is everything one turn said. Zero values mean "not mentioned".
type Slots struct {
	Day              string
	Time             string
	PartySize        int
	RequestedService models.ServiceType
	Name             string
	Reference        string
	Signals
}

// Options tune Analyze for the current dialogue state.
type Options struct {
	// SkipName disables name extraction when a name is already stored.
	SkipName bool
	// ExpectName accepts a bare one or two word line as a name.
	ExpectName bool
}

func Analyze(text string, opts Options) Slots {
	s := Slots{Signals: Classify(text)}
	s.Day, _ = Day(text)
	s.Time, _ = Time(text)
	s.PartySize, _ = PartySize(text)
	s.RequestedService, _ = RequestedService(text)
	s.Reference, _ = TransferReference(text)
	if s.Reference != "" {
		s.PaymentIntent = true
	}
	if !opts.SkipName {
		s.Name, _ = Name(text, opts.ExpectName)
	}
	return s
}

// HasReservationFields reports whether any reservation slot other than the
// name was mentioned.
func (s Slots) HasReservationFields() bool {
	return s.Day != "" || s.Time != "" || s.PartySize > 0 || s.RequestedService != ""
}

// HasFullSlotSet is true when day, party size and service all appear.
func (s Slots) HasFullSlotSet() bool {
	return s.Day != "" && s.PartySize > 0 && (s.RequestedService != "" || s.Time != "")
}

// NameOnly is a turn that supplies a name and nothing else.
func (s Slots) NameOnly() bool {
	return s.Name != "" && !s.HasReservationFields() && !s.PaymentIntent && !s.NewConversation
}

func (s Slots) Intent() string {
	switch {
	case s.NewConversation:
		return IntentNewConversation
	case s.PaymentIntent:
		return IntentPayment
	case s.HasReservationFields():
		return IntentReservation
	case s.Name != "":
		return IntentName
	case s.Greeting:
		return IntentGreeting
	case s.ReservationIntent:
		return IntentReservation
	}
	return IntentOther
}
