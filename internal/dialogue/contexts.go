package dialogue

import (
	"context"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/Alvaro-gonzalez05/ChatbotManagerLaBIRRITA-sub000/internal/models"
	"github.com/Alvaro-gonzalez05/ChatbotManagerLaBIRRITA-sub000/internal/storage"
)

// loadContext returns the live context for the turn or a new one. An
// expired context is purged and treated as absent. fresh reports that
// nothing usable was stored.
func (e *Engine) loadContext(ctx context.Context, turn Turn) (*models.DialogueContext, bool) {
	now := e.clock.Now()
	dc, err := e.contexts.GetContext(ctx, turn.CustomerID, turn.Business.ID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return models.NewDialogueContext(turn.CustomerID, turn.Business.ID, now), true
	case err != nil:
		e.logger.Error("failed to load dialogue context, starting empty",
			zap.String("customer", turn.CustomerID), zap.Error(err))
		return models.NewDialogueContext(turn.CustomerID, turn.Business.ID, now), true
	}

	if dc.Expired(now) {
		if err := e.contexts.DeleteContext(ctx, turn.CustomerID, turn.Business.ID); err != nil {
			e.logger.Warn("failed to purge expired context",
				zap.String("customer", turn.CustomerID), zap.Error(err))
		}
		return models.NewDialogueContext(turn.CustomerID, turn.Business.ID, now), true
	}
	return dc, false
}

// resetReason decides whether the stored context is stale and the turn
// starts a new conversation. A turn that only supplies a name never
// resets.
func (e *Engine) resetReason(st *turnState) (string, bool) {
	if st.fresh || st.slots.NameOnly() {
		return "", false
	}
	s, dc := st.slots, st.dc

	if s.NewConversation {
		return "explicit new conversation", true
	}
	if s.Greeting && s.HasFullSlotSet() && dc.HasReservationData() {
		return "greeting with a full new request", true
	}
	idle := st.now.Sub(dc.UpdatedAt)
	bareGreeting := s.Greeting && !s.HasReservationFields() && !s.PaymentIntent && s.Name == ""
	if e.settings.ResumeIdle > 0 && idle > e.settings.ResumeIdle && bareGreeting && !dc.HasReservationData() {
		return "greeting after idle period", true
	}
	return "", false
}

// saveContext refreshes the expiry and writes the context. Failures are
// logged; the reply still goes out.
func (e *Engine) saveContext(ctx context.Context, dc *models.DialogueContext) {
	dc.Touch(e.clock.Now(), e.settings.ContextTTL)
	if err := e.contexts.UpsertContext(ctx, dc); err != nil {
		e.logger.Error("failed to save dialogue context",
			zap.String("customer", dc.CustomerID),
			zap.String("business_id", dc.BusinessID),
			zap.Error(err))
	}
}
