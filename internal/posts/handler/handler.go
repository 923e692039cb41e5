// Package handler exposes post listing and administration over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"chapel/internal/posts/models"
	"chapel/internal/posts/service"
	dErrors "chapel/pkg/domain-errors"
	"chapel/pkg/platform/httputil"
	"chapel/pkg/requestcontext"
)

// Service is the post use-case surface the handler depends on.
type Service interface {
	Create(ctx context.Context, cmd service.CreateCommand, author service.Author) (*models.Post, error)
	ListAnnouncements(ctx context.Context, category string) ([]*models.Post, error)
	ListResources(ctx context.Context, category string) ([]*models.Post, error)
	GetPublished(ctx context.Context, id uuid.UUID) (*models.Post, error)
	ListAll(ctx context.Context, status string) ([]*models.Post, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string, scheduledFor *time.Time) (*models.Post, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type Handler struct {
	svc    Service
	logger *slog.Logger
}

func New(svc Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// RegisterPublic mounts the unauthenticated read routes.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Get("/api/posts/announcements", h.HandleListAnnouncements)
	r.Get("/api/posts/resources", h.HandleListResources)
	r.Get("/api/posts/{id}", h.HandleGet)
}

// RegisterAdmin mounts the administration routes. The caller wraps r in the admin gate.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Get("/api/admin/posts", h.HandleListAll)
	r.Post("/api/admin/posts", h.HandleCreate)
	r.Patch("/api/admin/posts/{id}/status", h.HandleUpdateStatus)
	r.Delete("/api/admin/posts/{id}", h.HandleDelete)
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[CreatePostRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	principal, _ := requestcontext.PrincipalFrom(ctx)
	post, err := h.svc.Create(ctx, service.CreateCommand{
		Title:         req.Title,
		Content:       req.Content,
		Type:          req.Type,
		Category:      req.Category,
		Status:        req.Status,
		AuthorEmail:   req.AuthorEmail,
		AuthorName:    req.AuthorName,
		CoverImageURL: req.CoverImageURL,
		ScheduledFor:  req.ScheduledFor,
		Attachments:   req.Attachments,
	}, service.Author{Email: principal.Email, Name: principal.Name})
	if err != nil {
		h.logFailure(ctx, "create post failed", err)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "post created",
		"request_id", requestID,
		"post_id", post.ID,
		"status", post.Status,
		"user_id", principal.UserID,
	)
	httputil.WriteJSON(w, http.StatusCreated, CreatePostResponse{
		Success: true,
		ID:      post.ID.String(),
		Message: "Post created successfully",
	})
}

func (h *Handler) HandleListAnnouncements(w http.ResponseWriter, r *http.Request) {
	posts, err := h.svc.ListAnnouncements(r.Context(), r.URL.Query().Get("category"))
	h.writeList(w, r, posts, err)
}

func (h *Handler) HandleListResources(w http.ResponseWriter, r *http.Request) {
	posts, err := h.svc.ListResources(r.Context(), r.URL.Query().Get("category"))
	h.writeList(w, r, posts, err)
}

func (h *Handler) HandleListAll(w http.ResponseWriter, r *http.Request) {
	posts, err := h.svc.ListAll(r.Context(), r.URL.Query().Get("status"))
	h.writeList(w, r, posts, err)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	post, err := h.svc.GetPublished(r.Context(), id)
	if err != nil {
		h.logFailure(r.Context(), "get post failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]*models.Post{"post": post})
}

func (h *Handler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[UpdateStatusRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	post, err := h.svc.UpdateStatus(ctx, id, req.Status, req.ScheduledFor)
	if err != nil {
		h.logFailure(ctx, "update post status failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]*models.Post{"post": post})
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), id); err != nil {
		h.logFailure(r.Context(), "delete post failed", err)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeList(w http.ResponseWriter, r *http.Request, posts []*models.Post, err error) {
	if err != nil {
		h.logFailure(r.Context(), "list posts failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ListResponse{Posts: posts})
}

func (h *Handler) logFailure(ctx context.Context, msg string, err error) {
	level := slog.LevelInfo
	if !dErrors.HasCode(err, dErrors.CodeValidation) && !dErrors.HasCode(err, dErrors.CodeNotFound) {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, msg,
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	)
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "post not found"))
		return uuid.Nil, false
	}
	return id, true
}
