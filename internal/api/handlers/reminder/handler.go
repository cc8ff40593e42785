package reminder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	"github.com/agroaid/plant-reminder/internal/api/dto"
	"github.com/agroaid/plant-reminder/internal/api/respond"
	"github.com/agroaid/plant-reminder/internal/config"
	"github.com/agroaid/plant-reminder/internal/model"
	reminderrepo "github.com/agroaid/plant-reminder/internal/repository/reminder"
	remindersvc "github.com/agroaid/plant-reminder/internal/service/reminder"
)

//go:generate mockgen -source=handler.go -destination=../../../mocks/api/handlers/reminder/mock.go -package=mocks

type reminderService interface {
	CreateReminder(context.Context, retry.Strategy, model.Reminder) (uuid.UUID, error)
	CancelReminder(ctx context.Context, strategy retry.Strategy, id uuid.UUID) error
	GetReminderStateByID(context.Context, retry.Strategy, uuid.UUID) (model.State, error)
	ListByOwner(ctx context.Context, owner string) ([]model.Reminder, error)
	DeleteReminder(ctx context.Context, id uuid.UUID) error
}

// Handler serves the reminder HTTP API.
type Handler struct {
	service   reminderService
	validator *validator.Validate
	cfg       *config.Config
	location  *time.Location
}

// NewHandler creates a reminder handler. The configured timezone is
// resolved once at startup; an unknown timezone is a configuration error.
func NewHandler(
	s reminderService,
	v *validator.Validate,
	cfg *config.Config,
) *Handler {
	loc := time.Local
	if cfg.Scheduler.Timezone != "" {
		var err error
		loc, err = time.LoadLocation(cfg.Scheduler.Timezone)
		if err != nil {
			zlog.Logger.Fatal().Err(err).Str("timezone", cfg.Scheduler.Timezone).Msg("failed to load timezone")
		}
	}

	return &Handler{service: s, validator: v, cfg: cfg, location: loc}
}

// Create handles POST /api/reminders.
func (h *Handler) Create(c *ginext.Context) {
	var req dto.CreateRequest

	if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to decode request body")
		respond.Fail(c.Writer, http.StatusBadRequest, fmt.Errorf("invalid request body"))
		return
	}

	if err := h.validator.Struct(req); err != nil {
		zlog.Logger.Warn().Err(err).Msg("failed to validate request body")
		respond.Fail(c.Writer, http.StatusBadRequest, fmt.Errorf("validation error: %s", err.Error()))
		return
	}

	fireAt, err := time.ParseInLocation(time.DateTime, req.FireAt, h.location)
	if err != nil {
		zlog.Logger.Warn().Err(err).Str("fire_at", req.FireAt).Msg("failed to parse fire time")
		respond.Fail(c.Writer, http.StatusBadRequest, fmt.Errorf("invalid fire time"))
		return
	}

	channel := req.Channel
	if channel == "" {
		channel = "desktop"
	}

	rem := model.Reminder{
		Owner:      req.Owner,
		Task:       req.Task,
		Plant:      req.Plant,
		FireAt:     fireAt,
		Recurrence: model.Recurrence(strings.ToLower(req.Recurrence)),
		Channel:    channel,
		Contact:    req.Contact,
	}

	id, err := h.service.CreateReminder(c.Request.Context(), h.cfg.Retry, rem)
	if err != nil {
		switch {
		case errors.Is(err, remindersvc.ErrInvalidRecurrence):
			zlog.Logger.Warn().Err(err).Str("recurrence", req.Recurrence).Msg("invalid recurrence")
			respond.Fail(c.Writer, http.StatusBadRequest, fmt.Errorf("invalid recurrence"))
		case errors.Is(err, remindersvc.ErrPastDue):
			zlog.Logger.Warn().Err(err).Str("fire_at", req.FireAt).Msg("fire time past due")
			respond.Fail(c.Writer, http.StatusUnprocessableEntity, fmt.Errorf("fire time is past due"))
		case errors.Is(err, reminderrepo.ErrDuplicateReminder):
			zlog.Logger.Warn().Err(err).Str("owner", req.Owner).Msg("duplicate reminder")
			respond.Fail(c.Writer, http.StatusConflict, fmt.Errorf("reminder already exists"))
		default:
			zlog.Logger.Error().Err(err).Str("owner", req.Owner).Msg("failed to create reminder")
			respond.Fail(c.Writer, http.StatusInternalServerError, fmt.Errorf("internal server error"))
		}
		return
	}

	respond.Created(c.Writer, id)
}

// List handles GET /api/reminders?owner=<owner>.
func (h *Handler) List(c *ginext.Context) {
	owner := c.Query("owner")
	if owner == "" {
		zlog.Logger.Warn().Msg("missing owner")
		respond.Fail(c.Writer, http.StatusBadRequest, fmt.Errorf("missing owner"))
		return
	}

	reminders, err := h.service.ListByOwner(c.Request.Context(), owner)
	if err != nil {
		zlog.Logger.Error().Err(err).Str("owner", owner).Msg("failed to list reminders")
		respond.Fail(c.Writer, http.StatusInternalServerError, fmt.Errorf("internal server error"))
		return
	}

	respond.OK(c.Writer, reminders)
}

// GetStatus handles GET /api/reminders/:id/status.
func (h *Handler) GetStatus(c *ginext.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	state, err := h.service.GetReminderStateByID(c.Request.Context(), h.cfg.Retry, id)
	if err != nil {
		if errors.Is(err, reminderrepo.ErrReminderNotFound) {
			zlog.Logger.Warn().Str("id", id.String()).Err(err).Msg("reminder not found")
			respond.Fail(c.Writer, http.StatusNotFound, fmt.Errorf("reminder not found"))
			return
		}

		zlog.Logger.Error().Err(err).Str("id", id.String()).Msg("failed to get reminder state")
		respond.Fail(c.Writer, http.StatusInternalServerError, fmt.Errorf("internal server error"))
		return
	}

	respond.OK(c.Writer, state)
}

// Cancel handles POST /api/reminders/:id/cancel.
func (h *Handler) Cancel(c *ginext.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	err := h.service.CancelReminder(c.Request.Context(), h.cfg.Retry, id)
	if err != nil {
		if errors.Is(err, reminderrepo.ErrReminderNotFound) {
			zlog.Logger.Warn().Str("id", id.String()).Err(err).Msg("reminder not found")
			respond.Fail(c.Writer, http.StatusNotFound, fmt.Errorf("reminder not found"))
			return
		}

		zlog.Logger.Error().Err(err).Str("id", id.String()).Msg("failed to cancel reminder")
		respond.Fail(c.Writer, http.StatusInternalServerError, fmt.Errorf("internal server error"))
		return
	}

	respond.OK(c.Writer, "reminder cancelled")
}

// Delete handles DELETE /api/reminders/:id.
func (h *Handler) Delete(c *ginext.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	err := h.service.DeleteReminder(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, reminderrepo.ErrReminderNotFound) {
			zlog.Logger.Warn().Str("id", id.String()).Err(err).Msg("reminder not found")
			respond.Fail(c.Writer, http.StatusNotFound, fmt.Errorf("reminder not found"))
			return
		}

		zlog.Logger.Error().Err(err).Str("id", id.String()).Msg("failed to delete reminder")
		respond.Fail(c.Writer, http.StatusInternalServerError, fmt.Errorf("internal server error"))
		return
	}

	respond.OK(c.Writer, "reminder deleted")
}

func (h *Handler) parseID(c *ginext.Context) (uuid.UUID, bool) {
	idStr := c.Param("id")
	id, err := uuid.Parse(idStr)
	if err != nil {
		zlog.Logger.Error().Err(err).Str("idStr", idStr).Msg("failed to parse id")
		respond.Fail(c.Writer, http.StatusBadRequest, fmt.Errorf("invalid id"))
		return uuid.Nil, false
	}

	if id == uuid.Nil {
		zlog.Logger.Warn().Msg("missing id")
		respond.Fail(c.Writer, http.StatusBadRequest, fmt.Errorf("missing id"))
		return uuid.Nil, false
	}

	return id, true
}
