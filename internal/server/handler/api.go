package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/sevigo/shot-warden/internal/core"
)

// BuildStore loads builds for the API.
type BuildStore interface {
	GetBuild(ctx context.Context, id int64) (*core.Build, error)
}

// NotificationPusher records and queues a build notification.
type NotificationPusher interface {
	Push(ctx context.Context, buildID int64, t core.NotificationType) error
}

// notificationRequest is the body of POST /builds/{id}/notifications.
type notificationRequest struct {
	Type string `json:"type" validate:"required,oneof=queued progress no-diff-detected diff-detected diff-accepted diff-rejected error aborted expired"`
}

// APIHandler serves the build endpoints.
type APIHandler struct {
	builds        BuildStore
	pusher        core.Pusher
	notifications NotificationPusher
	validate      *validator.Validate
	logger        *slog.Logger
}

// NewAPIHandler creates an APIHandler.
func NewAPIHandler(builds BuildStore, pusher core.Pusher, notifications NotificationPusher, logger *slog.Logger) *APIHandler {
	return &APIHandler{
		builds:        builds,
		pusher:        pusher,
		notifications: notifications,
		validate:      validator.New(),
		logger:        logger,
	}
}

// ProcessBuild queues a build job.
func (h *APIHandler) ProcessBuild(w http.ResponseWriter, r *http.Request) {
	build, ok := h.loadBuild(w, r)
	if !ok {
		return
	}
	if err := h.pusher.Push(r.Context(), core.QueueBuild, build.ID); err != nil {
		h.logger.Error("failed to queue build", "build_id", build.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to queue build")
		return
	}
	h.logger.Info("build queued", "build_id", build.ID)
	writeJSON(w, http.StatusAccepted, map[string]any{"build_id": build.ID, "queue": core.QueueBuild})
}

// PushNotification records a notification for a build and queues its delivery.
func (h *APIHandler) PushNotification(w http.ResponseWriter, r *http.Request) {
	build, ok := h.loadBuild(w, r)
	if !ok {
		return
	}

	var req notificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, formatValidationError(err))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, formatValidationError(err))
		return
	}

	t := core.NotificationType(req.Type)
	if err := h.notifications.Push(r.Context(), build.ID, t); err != nil {
		h.logger.Error("failed to queue notification", "build_id", build.ID, "type", t, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to queue notification")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"build_id": build.ID, "type": t})
}

func (h *APIHandler) loadBuild(w http.ResponseWriter, r *http.Request) (*core.Build, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid build id")
		return nil, false
	}
	build, err := h.builds.GetBuild(r.Context(), id)
	switch {
	case errors.Is(err, core.ErrNotFound):
		writeError(w, http.StatusNotFound, fmt.Sprintf("build %d not found", id))
		return nil, false
	case err != nil:
		h.logger.Error("failed to load build", "build_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load build")
		return nil, false
	}
	return build, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// formatValidationError turns decode and validation failures into one message.
func formatValidationError(err error) string {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		messages := make([]string, 0, len(validationErrors))
		for _, e := range validationErrors {
			field := strings.ToLower(e.Field())
			switch e.Tag() {
			case "required":
				messages = append(messages, fmt.Sprintf("field '%s' is required", field))
			case "oneof":
				messages = append(messages, fmt.Sprintf("field '%s' must be one of: %s", field, e.Param()))
			default:
				messages = append(messages, fmt.Sprintf("field '%s' validation failed on '%s' tag", field, e.Tag()))
			}
		}
		return strings.Join(messages, "; ")
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return fmt.Sprintf("field '%s' should be %s", typeErr.Field, typeErr.Type.String())
	}
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return "invalid JSON format"
	}
	return err.Error()
}
