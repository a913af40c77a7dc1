package payments

import (
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/zavolah/marketplace/internal/errors"
	"github.com/zavolah/marketplace/internal/httputil"
	"github.com/zavolah/marketplace/internal/logging"
	"github.com/zavolah/marketplace/internal/webhook"
)

// Webhook outcomes recorded per event.
const (
	outcomeAccepted = "accepted"
	outcomeIgnored  = "ignored"
	outcomeRejected = "rejected"
	outcomeFailed   = "failed"
)

// EventRecorder counts webhook deliveries.
type EventRecorder interface {
	RecordWebhookEvent(eventType, outcome string)
}

// Handler serves /payments.
type Handler struct {
	repo     Repository
	verifier *webhook.Verifier
	events   EventRecorder
	logger   *logging.Logger
}

// NewHandler creates a payments handler. events may be nil.
func NewHandler(repo Repository, verifier *webhook.Verifier, events EventRecorder, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.NewDefault("payments")
	}
	return &Handler{repo: repo, verifier: verifier, events: events, logger: logger}
}

// RegisterRoutes mounts the payment routes on r.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	s := r.PathPrefix("/payments").Subrouter()
	s.HandleFunc("/initiate", h.wrap(h.handleInitiate)).Methods(http.MethodPost)
	s.HandleFunc("/verify", h.wrap(h.handleVerify)).Methods(http.MethodPost)
	s.HandleFunc("/refund", h.wrap(h.handleRefund)).Methods(http.MethodPost)
	s.HandleFunc("/refunds", h.wrap(h.handleListRefunds)).Methods(http.MethodGet)
	s.HandleFunc("/refunds/{id}", h.wrap(h.handleUpdateRefund)).Methods(http.MethodPut)
	s.HandleFunc("/webhook/stripe", h.wrap(h.handleWebhook)).Methods(http.MethodPost)
	s.HandleFunc("/stats/revenue", h.wrap(h.handleRevenue)).Methods(http.MethodGet)
	s.HandleFunc("/methods", h.wrap(h.handleMethods)).Methods(http.MethodGet)
	s.HandleFunc("/user/{user_id}/history", h.wrap(h.handleHistory)).Methods(http.MethodGet)
	s.HandleFunc("", h.wrap(h.handleList)).Methods(http.MethodGet)
	s.HandleFunc("/{id}", h.wrap(h.handleGet)).Methods(http.MethodGet)
}

func (h *Handler) wrap(fn httputil.HandlerFunc) http.HandlerFunc {
	return httputil.Handle(h.logger, fn)
}

// =============================================================================
// Payments
// =============================================================================

func (h *Handler) handleInitiate(w http.ResponseWriter, r *http.Request) error {
	var in InitiateInput
	if err := httputil.Decode(r, &in); err != nil {
		return err
	}
	if msg := in.validate(); msg != "" {
		return errors.Validation(msg)
	}

	p, err := h.repo.Initiate(r.Context(), &in)
	if err != nil {
		return errors.Upstream("initiate payment", err)
	}
	h.logger.WithContext(r.Context()).WithFields(map[string]interface{}{
		"payment_id": p.ID,
		"user_id":    p.UserID,
		"amount":     p.Amount,
	}).Info("payment initiated")
	httputil.WriteJSON(w, http.StatusOK, p)
	return nil
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) error {
	var in VerifyInput
	if err := httputil.Decode(r, &in); err != nil {
		return err
	}
	if msg := in.validate(); msg != "" {
		return errors.Validation(msg)
	}

	if in.PaymentIntentID != "" {
		current, err := h.repo.Get(r.Context(), in.PaymentID)
		if err != nil {
			return errors.FromStore("payment", "verify payment", err)
		}
		if current.PaymentIntentID == nil || *current.PaymentIntentID != in.PaymentIntentID {
			return errors.Validation("payment_intent_id does not match payment")
		}
	}

	p, err := h.repo.SetStatus(r.Context(), in.PaymentID, in.Status)
	if err != nil {
		return errors.FromStore("payment", "verify payment", err)
	}
	if p.Status == StatusCompleted {
		h.fulfill(r, p)
	}
	httputil.WriteJSON(w, http.StatusOK, p)
	return nil
}

// fulfill confirms the purchases a completed payment paid for. Failures are
// logged and never fail the caller.
func (h *Handler) fulfill(r *http.Request, p *Payment) {
	if err := h.repo.Fulfill(r.Context(), p); err != nil {
		h.logger.WithContext(r.Context()).WithError(err).
			WithField("payment_id", p.ID).
			Error("payment fulfillment failed")
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) error {
	page, err := httputil.Pagination(r, httputil.DefaultLimit)
	if err != nil {
		return err
	}
	payments, err := h.repo.List(r.Context(), Filter{
		UserID:        httputil.Query(r, "user_id"),
		Status:        httputil.Query(r, "status"),
		PaymentMethod: httputil.Query(r, "payment_method"),
	}, page)
	if err != nil {
		return errors.Upstream("list payments", err)
	}
	httputil.WriteJSON(w, http.StatusOK, payments)
	return nil
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) error {
	page, err := httputil.Pagination(r, httputil.DefaultLimit)
	if err != nil {
		return err
	}
	payments, err := h.repo.List(r.Context(), Filter{UserID: httputil.PathParam(r, "user_id")}, page)
	if err != nil {
		return errors.Upstream("payment history", err)
	}
	httputil.WriteJSON(w, http.StatusOK, payments)
	return nil
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) error {
	p, err := h.repo.Get(r.Context(), httputil.PathParam(r, "id"))
	if err != nil {
		return errors.FromStore("payment", "get payment", err)
	}
	httputil.WriteJSON(w, http.StatusOK, p)
	return nil
}

func (h *Handler) handleRevenue(w http.ResponseWriter, r *http.Request) error {
	rev, err := h.repo.Revenue(r.Context())
	if err != nil {
		return errors.Upstream("revenue stats", err)
	}
	httputil.WriteJSON(w, http.StatusOK, rev)
	return nil
}

func (h *Handler) handleMethods(w http.ResponseWriter, r *http.Request) error {
	httputil.WriteJSON(w, http.StatusOK, map[string][]Method{"methods": Methods})
	return nil
}

// =============================================================================
// Refunds
// =============================================================================

func (h *Handler) handleRefund(w http.ResponseWriter, r *http.Request) error {
	var in RefundInput
	if err := httputil.Decode(r, &in); err != nil {
		return err
	}
	if msg := in.validate(); msg != "" {
		return errors.Validation(msg)
	}

	p, err := h.repo.Get(r.Context(), in.PaymentID)
	if err != nil {
		return errors.FromStore("payment", "refund payment", err)
	}
	amount := p.Amount
	if in.Amount != nil && *in.Amount > 0 {
		amount = *in.Amount
	}
	if amount > p.Amount {
		return errors.Validationf("refund amount %.2f exceeds payment amount %.2f", amount, p.Amount)
	}

	refund, err := h.repo.CreateRefund(r.Context(), p.ID, amount, in.Reason)
	if err != nil {
		return errors.Upstream("create refund", err)
	}
	httputil.WriteJSON(w, http.StatusOK, refund)
	return nil
}

func (h *Handler) handleListRefunds(w http.ResponseWriter, r *http.Request) error {
	page, err := httputil.Pagination(r, httputil.DefaultLimit)
	if err != nil {
		return err
	}
	refunds, err := h.repo.ListRefunds(r.Context(), Filter{
		PaymentID: httputil.Query(r, "payment_id"),
		Status:    httputil.Query(r, "status"),
	}, page)
	if err != nil {
		return errors.Upstream("list refunds", err)
	}
	httputil.WriteJSON(w, http.StatusOK, refunds)
	return nil
}

func (h *Handler) handleUpdateRefund(w http.ResponseWriter, r *http.Request) error {
	status, err := httputil.RequiredQuery(r, "status")
	if err != nil {
		return err
	}
	if !refundStatuses[status] {
		return errors.Validationf("invalid refund status %q", status)
	}
	if _, err := h.repo.SetRefundStatus(r.Context(), httputil.PathParam(r, "id"), status); err != nil {
		return errors.FromStore("refund", "update refund", err)
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"message": "Refund status updated successfully"})
	return nil
}

// =============================================================================
// Webhook
// =============================================================================

func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) error {
	payload, err := io.ReadAll(io.LimitReader(r.Body, httputil.MaxBodyBytes))
	if err != nil {
		return errors.Validation("unreadable webhook body")
	}

	if err := h.verifier.Verify(payload, r.Header.Get(webhook.SignatureHeader)); err != nil {
		h.record("unknown", outcomeRejected)
		h.logger.LogSecurityEvent(r.Context(), "webhook_signature_rejected", map[string]interface{}{
			"reason":      err.Error(),
			"remote_addr": r.RemoteAddr,
		})
		return errors.InvalidSignature(err)
	}

	event, err := webhook.ParseEvent(payload)
	if err != nil {
		h.record("unknown", outcomeRejected)
		return errors.Validation(err.Error())
	}

	log := h.logger.WithContext(r.Context()).WithFields(map[string]interface{}{
		"event_id":   event.ID,
		"event_type": event.Type,
		"object_id":  event.ObjectID(),
	})

	switch event.Type {
	case webhook.EventPaymentSucceeded:
		payments, err := h.repo.SetStatusByIntent(r.Context(), event.ObjectID(), StatusCompleted)
		if err != nil {
			h.record(event.Type, outcomeFailed)
			return errors.Upstream("apply payment success", err)
		}
		for i := range payments {
			h.fulfill(r, &payments[i])
		}
		if len(payments) == 0 {
			log.Warn("no payment matches intent")
		}
	case webhook.EventPaymentFailed:
		if _, err := h.repo.SetStatusByIntent(r.Context(), event.ObjectID(), StatusFailed); err != nil {
			h.record(event.Type, outcomeFailed)
			return errors.Upstream("apply payment failure", err)
		}
	case webhook.EventDisputeCreated:
		if err := h.repo.CreateChargeback(r.Context(), Chargeback{
			ChargeID: event.ObjectID(),
			Amount:   event.Amount(),
			Reason:   event.DisputeReason(),
			Status:   ChargebackOpen,
		}); err != nil {
			h.record(event.Type, outcomeFailed)
			return errors.Upstream("record chargeback", err)
		}
	default:
		h.record(event.Type, outcomeIgnored)
		log.Debug("webhook event ignored")
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "success"})
		return nil
	}

	h.record(event.Type, outcomeAccepted)
	log.Info("webhook event processed")
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "success"})
	return nil
}

func (h *Handler) record(eventType, outcome string) {
	if h.events != nil {
		h.events.RecordWebhookEvent(eventType, outcome)
	}
}
