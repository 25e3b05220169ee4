package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/Alvaro-gonzalez05/ChatbotManagerLaBIRRITA-sub000/internal/payment"
	"github.com/Alvaro-gonzalez05/ChatbotManagerLaBIRRITA-sub000/internal/storage"
)

const TypeFollowUp = "reservation:followup"

const followUpMaxRetry = 5

// Sender delivers a WhatsApp text from a business channel.
type Sender interface {
	Send(ctx context.Context, channelID, to, text string) error
}

// AsynqQueue enqueues follow-ups on Redis so staff are notified even if
// this process restarts.
type AsynqQueue struct {
	client *asynq.Client
	logger *zap.Logger
}

func NewAsynqQueue(client *asynq.Client, logger *zap.Logger) *AsynqQueue {
	return &AsynqQueue{client: client, logger: logger.Named("followups")}
}

func NewFollowUpTask(f payment.FollowUp) (*asynq.Task, error) {
	b, err := json.Marshal(f)
	if err != nil {
		return nil, errors.Wrap(err, "marshal follow-up")
	}
	return asynq.NewTask(TypeFollowUp, b, asynq.MaxRetry(followUpMaxRetry)), nil
}

func (q *AsynqQueue) EnqueueFollowUp(ctx context.Context, f payment.FollowUp) error {
	task, err := NewFollowUpTask(f)
	if err != nil {
		return err
	}
	info, err := q.client.EnqueueContext(ctx, task)
	if err != nil {
		return errors.Wrap(err, "enqueue follow-up")
	}
	q.logger.Info("follow-up enqueued",
		zap.String("task_id", info.ID),
		zap.String("business_id", f.BusinessID),
		zap.String("reference", f.Reference))
	return nil
}

// LogQueue records follow-ups in the log only. It is used when Redis is
// not configured.
type LogQueue struct {
	logger *zap.Logger
}

func NewLogQueue(logger *zap.Logger) *LogQueue {
	return &LogQueue{logger: logger.Named("followups")}
}

func (q *LogQueue) EnqueueFollowUp(ctx context.Context, f payment.FollowUp) error {
	q.logger.Error("MANUAL FOLLOW-UP REQUIRED: paid reservation not recorded",
		zap.String("business_id", f.BusinessID),
		zap.String("customer_phone", f.CustomerPhone),
		zap.String("reference", f.Reference),
		zap.Float64("amount", f.Amount),
		zap.String("reason", f.Reason))
	return nil
}

// FollowUpHandler alerts the business owner about a follow-up.
type FollowUpHandler struct {
	businesses storage.ReservationStore
	sender     Sender
	logger     *zap.Logger
}

func NewFollowUpHandler(businesses storage.ReservationStore, sender Sender, logger *zap.Logger) *FollowUpHandler {
	return &FollowUpHandler{
		businesses: businesses,
		sender:     sender,
		logger:     logger.Named("followup_handler"),
	}
}

// ProcessTask notifies the owner of the business. A malformed payload is
// skipped; send failures are returned so asynq retries them.
func (h *FollowUpHandler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	var f payment.FollowUp
	if err := json.Unmarshal(task.Payload(), &f); err != nil {
		h.logger.Error("invalid follow-up payload", zap.Error(err))
		return errors.Wrap(asynq.SkipRetry, err.Error())
	}

	business, err := h.businesses.GetBusiness(ctx, f.BusinessID)
	if err != nil {
		return errors.Wrap(err, "load business")
	}
	if business.OwnerPhone == "" {
		h.logger.Error("MANUAL FOLLOW-UP REQUIRED: business has no owner phone",
			zap.String("business_id", f.BusinessID),
			zap.String("reference", f.Reference))
		return nil
	}

	if err := h.sender.Send(ctx, business.ChannelID, business.OwnerPhone, FollowUpText(f)); err != nil {
		return errors.Wrap(err, "notify owner")
	}
	return nil
}

// FollowUpWorker runs FollowUpHandler on an asynq server.
type FollowUpWorker struct {
	srv     *asynq.Server
	handler *FollowUpHandler
	logger  *zap.Logger
}

func NewFollowUpWorker(redisOpts asynq.RedisClientOpt, handler *FollowUpHandler, logger *zap.Logger) *FollowUpWorker {
	logger = logger.Named("followup_worker")
	srv := asynq.NewServer(redisOpts, asynq.Config{
		Concurrency: 2,
		Queues: map[string]int{
			"default": 1,
		},
		Logger: logger.Sugar(),
	})
	return &FollowUpWorker{srv: srv, handler: handler, logger: logger}
}

// Start launches the worker, retrying with backoff while Redis is
// unreachable.
func (w *FollowUpWorker) Start() {
	mux := asynq.NewServeMux()
	mux.Handle(TypeFollowUp, w.handler)

	go func() {
		const maxAttempts = 5
		for attempt := 1; attempt <= maxAttempts; attempt++ {
			err := w.srv.Start(mux)
			if err == nil {
				w.logger.Info("follow-up worker started")
				return
			}
			w.logger.Warn("follow-up worker failed to start",
				zap.Int("attempt", attempt), zap.Error(err))
			time.Sleep(time.Duration(attempt*2) * time.Second)
		}
		w.logger.Error("follow-up worker gave up starting")
	}()
}

func (w *FollowUpWorker) Shutdown() {
	w.srv.Shutdown()
}

// FollowUpText is the alert sent to the business owner.
func FollowUpText(f payment.FollowUp) string {
	var parts []string
	if f.Draft.CustomerName != "" {
		parts = append(parts, f.Draft.CustomerName)
	}
	if f.Draft.Day != "" {
		parts = append(parts, f.Draft.Day)
	}
	if f.Draft.Time != "" {
		parts = append(parts, f.Draft.Time)
	}
	if f.Draft.PartySize > 0 {
		parts = append(parts, fmt.Sprintf("%d personas", f.Draft.PartySize))
	}
	if label := f.Draft.ServiceType.Label(); label != "" {
		parts = append(parts, label)
	}

	return fmt.Sprintf("⚠️ Seña cobrada sin reserva registrada.\nCliente: %s\nOperación: %s\nMonto: %.2f\nReserva: %s\nCargala a mano y avisale al cliente.",
		f.CustomerPhone, f.Reference, f.Amount, strings.Join(parts, ", "))
}
