package promote

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"chapel/internal/audit"
	"chapel/pkg/domain"
	dErrors "chapel/pkg/domain-errors"
	"chapel/pkg/platform/httputil"
	"chapel/pkg/requestcontext"
)

const CodeUserNotFound = "USER_NOT_FOUND"

type Request struct {
	Email string `json:"email" validate:"omitempty,email"`
	UID   string `json:"uid" validate:"max=128"`
	Role  string `json:"role"`
}

func (r *Request) Validate() error {
	r.Email = strings.TrimSpace(r.Email)
	r.UID = strings.TrimSpace(r.UID)
	r.Role = strings.TrimSpace(r.Role)
	if r.Email == "" && r.UID == "" {
		return dErrors.New(dErrors.CodeValidation, "email or uid is required")
	}
	if r.Role == "" {
		r.Role = domain.RoleAdmin.String()
	}
	if _, err := domain.ParseRole(r.Role); err != nil {
		return err
	}
	return httputil.ValidateStruct(r)
}

type Response struct {
	Success bool   `json:"success"`
	UID     string `json:"uid"`
	Role    string `json:"role"`
	Message string `json:"message"`
}

type Granter interface {
	Grant(ctx context.Context, cmd Command) (string, error)
}

type Handler struct {
	svc     Granter
	auditor audit.Publisher
	logger  *slog.Logger
}

func NewHandler(svc Granter, auditor audit.Publisher, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, auditor: auditor, logger: logger}
}

// Register mounts the promote route. The caller wraps r in the shared-secret guard.
func (h *Handler) Register(r chi.Router) {
	r.Post("/api/admin/promote", h.HandlePromote)
}

func (h *Handler) HandlePromote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	req, ok := httputil.DecodeAndPrepare[Request](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	role := domain.Role(req.Role)

	uid, err := h.svc.Grant(ctx, Command{UserID: req.UID, Email: req.Email, Role: role})
	if err != nil {
		code := CodeUserNotFound
		if !errors.Is(err, ErrUserNotFound) {
			code = string(dErrors.CodeInternal)
		}
		h.emit(ctx, r, audit.Event{Action: audit.ActionPromoteFailed, Code: code, UserID: req.UID, Email: req.Email, Role: req.Role})
		if errors.Is(err, ErrUserNotFound) {
			h.logger.InfoContext(ctx, "promote target not found",
				"request_id", requestID,
				"uid", req.UID,
			)
			httputil.WriteErrorCode(w, http.StatusNotFound, CodeUserNotFound, "User not found")
			return
		}
		h.logger.ErrorContext(ctx, "promote failed",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.emit(ctx, r, audit.Event{Action: audit.ActionPromoteGranted, UserID: uid, Email: req.Email, Role: req.Role})
	h.logger.InfoContext(ctx, "role granted",
		"request_id", requestID,
		"user_id", uid,
		"role", req.Role,
	)
	httputil.WriteJSON(w, http.StatusOK, Response{
		Success: true,
		UID:     uid,
		Role:    req.Role,
		Message: "Role " + req.Role + " granted",
	})
}

func (h *Handler) emit(ctx context.Context, r *http.Request, ev audit.Event) {
	if h.auditor == nil {
		return
	}
	h.auditor.Emit(ctx, ev.WithRequest(ctx, r.Method, r.URL.Path))
}
