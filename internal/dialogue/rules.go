package dialogue

import (
	"context"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/Alvaro-gonzalez05/ChatbotManagerLaBIRRITA-sub000/internal/models"
	"github.com/Alvaro-gonzalez05/ChatbotManagerLaBIRRITA-sub000/internal/payment"
)

type State string

const (
	StateEmpty           State = "EMPTY"
	StatePartial         State = "PARTIAL"
	StateCompleteNoName  State = "COMPLETE_NO_NAME"
	StateComplete        State = "COMPLETE"
	StateAwaitingPayment State = "AWAITING_PAYMENT_REF"
	StateVerifying       State = "VERIFYING"
	StateConfirmed       State = "CONFIRMED"
	StateRejected        State = "REJECTED"
)

// StateOf derives the conversation state from a context and its draft.
func StateOf(dc *models.DialogueContext, d models.ReservationDraft) State {
	if dc == nil {
		return StateEmpty
	}
	if dc.AwaitingPayment {
		switch payment.Outcome(dc.LastOutcome) {
		case payment.AmountMismatch, payment.NotApproved, payment.NotFound:
			return StateRejected
		}
		return StateAwaitingPayment
	}
	switch missing := d.Missing(); {
	case len(missing) == 0:
		return StateComplete
	case onlyNameMissing(d):
		return StateCompleteNoName
	case dc.HasReservationData() || dc.CustomerName != "":
		return StatePartial
	}
	return StateEmpty
}

// rule is one row of the priority table. The first matching rule answers
// the turn.
type rule struct {
	name  string
	match func(st *turnState) bool
	apply func(ctx context.Context, st *turnState) (Reply, error)
}

func (e *Engine) ruleTable() []rule {
	return []rule{
		{name: "payment", match: matchPayment, apply: e.applyPayment},
		{name: "slots", match: matchSlots, apply: e.applySlots},
		{name: "greeting", match: matchGreeting, apply: e.applyGreeting},
		{name: "fallback", match: func(*turnState) bool { return true }, apply: e.applyFallback},
	}
}

func matchPayment(st *turnState) bool {
	return st.slots.PaymentIntent || (st.turn.HasAttachment && st.dc.AwaitingPayment)
}

func matchSlots(st *turnState) bool {
	s := st.slots
	return s.HasReservationFields() || s.Name != "" || s.ReservationIntent || s.NewConversation
}

func matchGreeting(st *turnState) bool {
	return st.slots.Greeting
}

func (e *Engine) applyPayment(ctx context.Context, st *turnState) (Reply, error) {
	d := e.draft(st)
	ref := st.slots.Reference

	if ref == "" {
		switch {
		case !d.Complete():
			return Reply{Text: missingBeforePaymentText(d)}, nil
		case st.turn.HasAttachment:
			e.ensureDeposit(st, d)
			return Reply{Text: attachmentWithoutReferenceText()}, nil
		default:
			e.ensureDeposit(st, d)
			return Reply{Text: askReferenceText(st.dc.ExpectedDeposit, e.currency(st.business()), st.slots.ClaimedAmount)}, nil
		}
	}

	if !d.Complete() {
		st.dc.PendingReference = ref
		return Reply{Text: referenceHeldText(ref, d)}, nil
	}
	e.ensureDeposit(st, d)
	return e.verify(ctx, st, d, ref)
}

func (e *Engine) applySlots(ctx context.Context, st *turnState) (Reply, error) {
	d := e.draft(st)
	if core := coreMissing(d); len(core) > 0 {
		return Reply{Text: askSlotsText(d, core)}, nil
	}
	if d.CustomerName == "" {
		return Reply{Text: askNameText(d)}, nil
	}

	e.ensureDeposit(st, d)
	if ref := st.dc.PendingReference; ref != "" {
		return e.verify(ctx, st, d, ref)
	}
	return Reply{Text: e.paymentInstructions(ctx, st, d), State: StateAwaitingPayment}, nil
}

func (e *Engine) applyGreeting(ctx context.Context, st *turnState) (Reply, error) {
	if !st.dc.Greeted {
		st.dc.Greeted = true
		return Reply{Text: welcomeText(st.business(), st.turn.SenderName) + "\n" + introText()}, nil
	}
	text := greetingAckText(st.turn.SenderName)
	if st.dc.AwaitingPayment {
		text += " " + paymentReminderText(st.dc.ExpectedDeposit, e.currency(st.business()))
	}
	return Reply{Text: text}, nil
}

func (e *Engine) applyFallback(ctx context.Context, st *turnState) (Reply, error) {
	if st.dc.AwaitingPayment {
		return Reply{Text: paymentReminderText(st.dc.ExpectedDeposit, e.currency(st.business()))}, nil
	}
	if d := e.draft(st); st.dc.HasReservationData() {
		if core := coreMissing(d); len(core) > 0 {
			return Reply{Text: askSlotsText(d, core)}, nil
		}
		if d.CustomerName == "" {
			return Reply{Text: askNameText(d)}, nil
		}
	}
	return Reply{Text: e.generate(ctx, st)}, nil
}

// ensureDeposit records the expected deposit for a complete draft.
func (e *Engine) ensureDeposit(st *turnState, d models.ReservationDraft) {
	if st.dc.AwaitingPayment && st.dc.ExpectedDeposit > 0 {
		return
	}
	if amount, ok := d.ExpectedDeposit(e.unitDeposit(st.business())); ok {
		st.dc.ExpectedDeposit = amount
		st.dc.AwaitingPayment = true
	}
}

// verify checks ref against the expected deposit and commits on success.
func (e *Engine) verify(ctx context.Context, st *turnState, d models.ReservationDraft, ref string) (Reply, error) {
	b := st.business()
	expected := st.dc.ExpectedDeposit
	cur := e.currency(b)
	st.dc.PendingReference = ""
	st.dc.PaymentAttempts++

	e.logger.Info("verifying payment reference",
		zap.String("customer", st.turn.CustomerID),
		zap.String("reference", ref),
		zap.Float64("expected", expected),
		zap.String("state", string(StateVerifying)))

	v, err := e.reconciler.Verify(ctx, ref, expected, e.settings.Tolerance)
	if err != nil {
		e.logger.Warn("payment verification unavailable", zap.String("reference", ref), zap.Error(err))
		st.dc.PendingReference = ref
		return Reply{Text: gatewayUnavailableText(), State: StateAwaitingPayment}, nil
	}
	st.dc.LastOutcome = string(v.Outcome)

	switch v.Outcome {
	case payment.AmountMismatch:
		return Reply{Text: amountMismatchText(expected, v.Payment.Amount, cur), State: StateRejected, Outcome: v.Outcome}, nil
	case payment.NotApproved:
		return Reply{Text: notApprovedText(v.Payment.Status), State: StateRejected, Outcome: v.Outcome}, nil
	case payment.NotFound:
		return Reply{Text: notFoundText(ref), State: StateRejected, Outcome: v.Outcome}, nil
	}

	res, err := e.reconciler.Commit(ctx, payment.CommitRequest{
		Business:     b,
		CustomerID:   st.turn.CustomerID,
		Draft:        d,
		Verification: v,
		Currency:     cur,
	})
	if err != nil {
		if !errors.Is(err, payment.ErrCommitFailed) {
			e.logger.Error("unexpected commit error", zap.Error(err))
		}
		return Reply{Text: CommitFailedText(), State: StateAwaitingPayment, Outcome: v.Outcome}, nil
	}
	if res.UsedByOther {
		st.dc.LastOutcome = ""
		return Reply{Text: referenceUsedText(ref), State: StateAwaitingPayment, Outcome: v.Outcome}, nil
	}
	if res.UsedByEarlier {
		st.dc.LastOutcome = ""
		return Reply{Text: referenceUsedEarlierText(ref, res.Reservation), State: StateAwaitingPayment, Outcome: v.Outcome}, nil
	}

	st.closed = true
	return Reply{
		Text:        ConfirmationText(b, res.Reservation),
		State:       StateConfirmed,
		Outcome:     v.Outcome,
		Reservation: res.Reservation,
	}, nil
}

// paymentInstructions builds the deposit request, with a checkout link
// when the deposit mode asks for one.
func (e *Engine) paymentInstructions(ctx context.Context, st *turnState, d models.ReservationDraft) string {
	b := st.business()
	amount := st.dc.ExpectedDeposit
	cur := e.currency(b)

	if e.settings.DepositMode == "link" {
		link, err := e.reconciler.Gateway().CreatePaymentLink(ctx, payment.LinkRequest{
			Amount:            amount,
			Currency:          cur,
			Description:       depositDescription(b, d),
			ExternalReference: payment.ExternalReference(b.ID, st.turn.CustomerID),
			PayerName:         d.CustomerName,
			PayerPhone:        st.turn.CustomerID,
			SuccessURL:        e.settings.SuccessURL,
			NotificationURL:   e.settings.NotificationURL,
		})
		if err == nil {
			return depositLinkText(d, amount, cur, link)
		}
		e.logger.Warn("payment link creation failed, falling back to transfer",
			zap.String("customer", st.turn.CustomerID), zap.Error(err))
	}
	return depositTransferText(d, amount, cur, b.TransferAlias)
}

func coreMissing(d models.ReservationDraft) []models.Slot {
	var core []models.Slot
	for _, s := range d.Missing() {
		if s == models.SlotDay || s == models.SlotPartySize || s == models.SlotService {
			core = append(core, s)
		}
	}
	return core
}
