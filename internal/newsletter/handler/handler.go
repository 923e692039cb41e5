// Package handler exposes newsletter delivery and subscription endpoints.
package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"chapel/internal/newsletter/models"
	dErrors "chapel/pkg/domain-errors"
	"chapel/pkg/platform/httputil"
	"chapel/pkg/requestcontext"
)

type Service interface {
	Send(ctx context.Context, n models.Newsletter) (models.Delivery, error)
	Subscribe(ctx context.Context, email, name string) (*models.Subscriber, error)
	Unsubscribe(ctx context.Context, email string) error
}

type Handler struct {
	svc    Service
	logger *slog.Logger
}

func New(svc Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// RegisterSend mounts the delivery route. The caller wraps r in the role gate.
func (h *Handler) RegisterSend(r chi.Router) {
	r.Post("/api/email/newsletter", h.HandleSend)
}

// RegisterSubscriptions mounts the public subscription routes.
func (h *Handler) RegisterSubscriptions(r chi.Router) {
	r.Post("/api/newsletter/subscribe", h.HandleSubscribe)
	r.Post("/api/newsletter/unsubscribe", h.HandleUnsubscribe)
}

type SendRequest struct {
	Newsletter struct {
		Title   string `json:"title"`
		Content string `json:"content"`
		Type    string `json:"type"`
	} `json:"newsletter"`
}

func (r *SendRequest) Validate() error {
	r.Newsletter.Title = strings.TrimSpace(r.Newsletter.Title)
	r.Newsletter.Content = strings.TrimSpace(r.Newsletter.Content)
	r.Newsletter.Type = strings.TrimSpace(r.Newsletter.Type)
	if r.Newsletter.Title == "" || r.Newsletter.Content == "" {
		return dErrors.New(dErrors.CodeValidation, "newsletter title and content are required")
	}
	return nil
}

// SendResponse reports delivery counts. An interrupted run also carries
// Error and Code so clients can tell which subscribers may need a resend.
type SendResponse struct {
	Success bool   `json:"success"`
	Sent    int    `json:"sent"`
	Failed  int    `json:"failed"`
	Total   int    `json:"total"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

type SubscriptionRequest struct {
	Email string `json:"email" validate:"required,email,max=254"`
	Name  string `json:"name" validate:"max=100"`
}

func (r *SubscriptionRequest) Validate() error {
	r.Email = strings.TrimSpace(r.Email)
	r.Name = strings.TrimSpace(r.Name)
	return httputil.ValidateStruct(r)
}

type SubscriptionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (h *Handler) HandleSend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	req, ok := httputil.DecodeAndPrepare[SendRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	result, err := h.svc.Send(ctx, models.Newsletter{
		Title:   req.Newsletter.Title,
		Content: req.Newsletter.Content,
		Type:    req.Newsletter.Type,
	})
	if dErrors.HasCode(err, dErrors.CodeTimeout) {
		h.logger.ErrorContext(ctx, "newsletter send interrupted",
			"request_id", requestID,
			"sent", result.Sent,
			"failed", result.Failed,
			"total", result.Total,
			"error", err,
		)
		message := fmt.Sprintf("Newsletter delivery interrupted after %d of %d subscribers", result.Sent+result.Failed, result.Total)
		httputil.WriteJSON(w, dErrors.CodeTimeout.HTTPStatus(), SendResponse{
			Sent:    result.Sent,
			Failed:  result.Failed,
			Total:   result.Total,
			Message: message,
			Error:   message,
			Code:    string(dErrors.CodeTimeout),
		})
		return
	}
	if err != nil {
		h.logger.ErrorContext(ctx, "newsletter send failed",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, SendResponse{
		Success: true,
		Sent:    result.Sent,
		Failed:  result.Failed,
		Total:   result.Total,
		Message: fmt.Sprintf("Newsletter sent to %d of %d subscribers", result.Sent, result.Total),
	})
}

func (h *Handler) HandleSubscribe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	req, ok := httputil.DecodeAndPrepare[SubscriptionRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	if _, err := h.svc.Subscribe(ctx, req.Email, req.Name); err != nil {
		h.logger.ErrorContext(ctx, "subscribe failed", "request_id", requestID, "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, SubscriptionResponse{Success: true, Message: "Subscribed"})
}

func (h *Handler) HandleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	req, ok := httputil.DecodeAndPrepare[SubscriptionRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	if err := h.svc.Unsubscribe(ctx, req.Email); err != nil {
		h.logger.ErrorContext(ctx, "unsubscribe failed", "request_id", requestID, "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, SubscriptionResponse{Success: true, Message: "Unsubscribed"})
}
