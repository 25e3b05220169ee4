// Package dialogue runs the slot-filling conversation that turns a chat
// into a paid reservation.
package dialogue

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/Alvaro-gonzalez05/ChatbotManagerLaBIRRITA-sub000/internal/clock"
	"github.com/Alvaro-gonzalez05/ChatbotManagerLaBIRRITA-sub000/internal/config"
	"github.com/Alvaro-gonzalez05/ChatbotManagerLaBIRRITA-sub000/internal/extract"
	"github.com/Alvaro-gonzalez05/ChatbotManagerLaBIRRITA-sub000/internal/models"
	"github.com/Alvaro-gonzalez05/ChatbotManagerLaBIRRITA-sub000/internal/payment"
	"github.com/Alvaro-gonzalez05/ChatbotManagerLaBIRRITA-sub000/internal/storage"
)

// Turn is one debounced batch from a customer.
type Turn struct {
	Business      *models.Business
	CustomerID    string
	SenderName    string
	Text          string
	Reference     string
	HasAttachment bool
	ReceivedAt    time.Time
}

// Reply is what the engine wants sent back.
type Reply struct {
	Text        string
	State       State
	Rule        string
	Outcome     payment.Outcome
	Reservation *models.Reservation
	Reset       bool
}

// Settings are the dialogue knobs taken from configuration.
type Settings struct {
	ContextTTL      time.Duration
	ResumeIdle      time.Duration
	HistorySize     int
	Tolerance       float64
	DefaultDeposit  float64
	DefaultCurrency string
	DepositMode     string
	SuccessURL      string
	NotificationURL string
}

func SettingsFrom(cfg config.Config) Settings {
	return Settings{
		ContextTTL:      cfg.Dialogue.ContextTTL,
		ResumeIdle:      cfg.Dialogue.ResumeIdle,
		HistorySize:     cfg.Dialogue.HistorySize,
		Tolerance:       cfg.Payment.Tolerance,
		DefaultDeposit:  cfg.Dialogue.DefaultDepositPerPerson,
		DefaultCurrency: cfg.Dialogue.DefaultCurrency,
		DepositMode:     cfg.Payment.DepositMode,
		SuccessURL:      cfg.Payment.SuccessURL,
		NotificationURL: cfg.Payment.NotificationURL,
	}
}

type Engine struct {
	contexts   storage.ContextStore
	reconciler *payment.Reconciler
	generator  TextGenerator
	clock      clock.Clock
	settings   Settings
	logger     *zap.Logger
	rules      []rule
}

// NewEngine wires the engine. generator may be nil, in which case the
// fallback reply is a static help text.
func NewEngine(contexts storage.ContextStore, reconciler *payment.Reconciler, generator TextGenerator, clk clock.Clock, settings Settings, logger *zap.Logger) *Engine {
	if settings.HistorySize <= 0 {
		settings.HistorySize = 6
	}
	if settings.DefaultCurrency == "" {
		settings.DefaultCurrency = "ARS"
	}
	e := &Engine{
		contexts:   contexts,
		reconciler: reconciler,
		generator:  generator,
		clock:      clk,
		settings:   settings,
		logger:     logger.Named("dialogue"),
	}
	e.rules = e.ruleTable()
	return e
}

// turnState is the working set of one Handle call.
type turnState struct {
	turn   Turn
	dc     *models.DialogueContext
	fresh  bool
	slots  extract.Slots
	now    time.Time
	prefix string
	// closed is set once the context was deleted by a commit and must not
	// be written back.
	closed bool
	reset  bool
}

func (st *turnState) business() *models.Business { return st.turn.Business }

// Handle processes one turn and returns the reply. Storage and gateway
// failures degrade the reply; an error is only returned for a turn that
// cannot be processed at all.
func (e *Engine) Handle(ctx context.Context, turn Turn) (Reply, error) {
	if turn.Business == nil {
		return Reply{}, errors.New("dialogue turn without business")
	}
	if turn.CustomerID == "" {
		return Reply{}, errors.New("dialogue turn without customer")
	}

	st := &turnState{turn: turn, now: e.clock.Now()}
	st.dc, st.fresh = e.loadContext(ctx, turn)

	draft := e.draft(st)
	st.slots = extract.Analyze(turn.Text, extract.Options{
		SkipName:   st.dc.CustomerName != "",
		ExpectName: st.dc.CustomerName == "" && onlyNameMissing(draft),
	})
	if st.slots.Reference == "" && turn.Reference != "" {
		st.slots.Reference = turn.Reference
		st.slots.PaymentIntent = true
	}

	if reason, ok := e.resetReason(st); ok {
		e.logger.Info("discarding stale dialogue context",
			zap.String("customer", turn.CustomerID),
			zap.String("business_id", turn.Business.ID),
			zap.String("reason", reason))
		st.dc = models.NewDialogueContext(turn.CustomerID, turn.Business.ID, st.now)
		st.fresh = true
		st.reset = true
		if st.slots.NewConversation {
			st.prefix = restartText()
		}
	}

	e.merge(st)
	e.greetOnce(st)

	var reply Reply
	for _, r := range e.rules {
		if !r.match(st) {
			continue
		}
		var err error
		reply, err = r.apply(ctx, st)
		if err != nil {
			return Reply{}, errors.Wrapf(err, "rule %s", r.name)
		}
		reply.Rule = r.name
		break
	}
	if st.prefix != "" {
		reply.Text = st.prefix + "\n\n" + reply.Text
	}
	reply.Reset = st.reset
	if reply.State == "" {
		reply.State = StateOf(st.dc, e.draft(st))
	}

	if !st.closed {
		st.dc.AppendTurn(models.Turn{Text: turn.Text, Intent: st.slots.Intent(), At: st.now}, e.settings.HistorySize)
		e.saveContext(ctx, st.dc)
	}

	e.logger.Debug("turn handled",
		zap.String("customer", turn.CustomerID),
		zap.String("rule", reply.Rule),
		zap.String("state", string(reply.State)))
	return reply, nil
}

// draft returns the context's draft with the business default time filled
// in once the service is known.
func (e *Engine) draft(st *turnState) models.ReservationDraft {
	d := st.dc.Draft()
	if d.Time == "" && d.ServiceType != "" {
		d.Time = st.business().DefaultTime(d.ServiceType)
	}
	return d
}

func onlyNameMissing(d models.ReservationDraft) bool {
	missing := d.Missing()
	return len(missing) == 1 && missing[0] == models.SlotName
}

// merge folds the turn's slots into the context. Explicit values override,
// absent ones keep what is stored. The name is only set once.
func (e *Engine) merge(st *turnState) {
	dc, s := st.dc, st.slots
	changed := false
	if s.Day != "" && s.Day != dc.Day {
		dc.Day = s.Day
		changed = true
	}
	if s.Time != "" && s.Time != dc.Time {
		dc.Time = s.Time
		changed = true
	}
	if s.PartySize > 0 && s.PartySize != dc.PartySize {
		dc.PartySize = s.PartySize
		changed = true
	}
	if s.RequestedService != "" {
		dc.RequestedService = s.RequestedService
	}
	if svc, ok := extract.ResolveService(dc.RequestedService, dc.Time); ok && svc != dc.ServiceType {
		dc.ServiceType = svc
		changed = true
	}
	if dc.CustomerName == "" && s.Name != "" {
		dc.CustomerName = s.Name
	}

	if changed && dc.AwaitingPayment {
		// The deposit is recomputed when the slot rule answers.
		dc.AwaitingPayment = false
		dc.ExpectedDeposit = 0
		dc.LastOutcome = ""
	}
}

// greetOnce prepares the welcome that opens the first reply of a context
// whose turn greets but is handled by a higher priority rule.
func (e *Engine) greetOnce(st *turnState) {
	if !st.slots.Greeting || st.dc.Greeted {
		return
	}
	if !hasContent(st) {
		return // the greeting rule answers on its own
	}
	st.prefix = strings.TrimSpace(st.prefix + " " + welcomeText(st.business(), st.turn.SenderName))
	st.dc.Greeted = true
}

func hasContent(st *turnState) bool {
	s := st.slots
	return s.PaymentIntent || s.HasReservationFields() || s.Name != "" || s.ReservationIntent || s.NewConversation ||
		(st.turn.HasAttachment && st.dc.AwaitingPayment)
}

func (e *Engine) unitDeposit(b *models.Business) float64 {
	if b.DepositPerPerson > 0 {
		return b.DepositPerPerson
	}
	return e.settings.DefaultDeposit
}

func (e *Engine) currency(b *models.Business) string {
	if b.Currency != "" {
		return b.Currency
	}
	return e.settings.DefaultCurrency
}
