package reminder

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/wb-go/wbf/retry"

	"github.com/agroaid/plant-reminder/internal/api/dto"
	"github.com/agroaid/plant-reminder/internal/config"
	mocks "github.com/agroaid/plant-reminder/internal/mocks/api/handlers/reminder"
	"github.com/agroaid/plant-reminder/internal/model"
	reminderrepo "github.com/agroaid/plant-reminder/internal/repository/reminder"
	remindersvc "github.com/agroaid/plant-reminder/internal/service/reminder"
)

func setupHandler(t *testing.T) (*Handler, *mocks.MockreminderService, *config.Config) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	mockService := mocks.NewMockreminderService(ctrl)
	cfg := &config.Config{Retry: retry.Strategy{}}
	validate := validator.New()
	handler := NewHandler(mockService, validate, cfg)
	return handler, mockService, cfg
}

func TestHandler_Create_Success(t *testing.T) {
	handler, mockService, cfg := setupHandler(t)

	reqBody := dto.CreateRequest{
		Owner:      "alice",
		Task:       "water",
		Plant:      "basil",
		FireAt:     "2030-09-15 10:00:00",
		Recurrence: "Daily",
	}

	bodyBytes, _ := json.Marshal(reqBody)
	req := httptest.NewRequest(http.MethodPost, "/api/reminders", bytes.NewReader(bodyBytes))
	w := httptest.NewRecorder()

	c, _ := gin.CreateTestContext(w)
	c.Request = req

	mockService.EXPECT().
		CreateReminder(
			gomock.Any(),
			cfg.Retry,
			gomock.AssignableToTypeOf(model.Reminder{}),
		).Return(uuid.New(), nil)

	handler.Create(c)

	assert.Equal(t, http.StatusCreated, w.Result().StatusCode)
}

func TestHandler_Create_InvalidBody(t *testing.T) {
	handler, _, _ := setupHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/reminders", bytes.NewReader([]byte("{not json")))
	w := httptest.NewRecorder()

	c, _ := gin.CreateTestContext(w)
	c.Request = req

	handler.Create(c)

	assert.Equal(t, http.StatusBadRequest, w.Result().StatusCode)
}

func TestHandler_Create_InvalidFireTime(t *testing.T) {
	handler, _, _ := setupHandler(t)

	reqBody := dto.CreateRequest{
		Owner:      "alice",
		Task:       "water",
		Plant:      "basil",
		FireAt:     "tomorrow at eight",
		Recurrence: "daily",
	}

	bodyBytes, _ := json.Marshal(reqBody)
	req := httptest.NewRequest(http.MethodPost, "/api/reminders", bytes.NewReader(bodyBytes))
	w := httptest.NewRecorder()

	c, _ := gin.CreateTestContext(w)
	c.Request = req

	handler.Create(c)

	assert.Equal(t, http.StatusBadRequest, w.Result().StatusCode)
}

func TestHandler_Create_PastDue(t *testing.T) {
	handler, mockService, cfg := setupHandler(t)

	reqBody := dto.CreateRequest{
		Owner:      "alice",
		Task:       "water",
		Plant:      "basil",
		FireAt:     "2020-01-01 08:00:00",
		Recurrence: "once",
	}

	bodyBytes, _ := json.Marshal(reqBody)
	req := httptest.NewRequest(http.MethodPost, "/api/reminders", bytes.NewReader(bodyBytes))
	w := httptest.NewRecorder()

	c, _ := gin.CreateTestContext(w)
	c.Request = req

	mockService.EXPECT().
		CreateReminder(gomock.Any(), cfg.Retry, gomock.AssignableToTypeOf(model.Reminder{})).
		Return(uuid.Nil, remindersvc.ErrPastDue)

	handler.Create(c)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Result().StatusCode)
}

func TestHandler_Create_Duplicate(t *testing.T) {
	handler, mockService, cfg := setupHandler(t)

	reqBody := dto.CreateRequest{
		Owner:      "alice",
		Task:       "water",
		Plant:      "basil",
		FireAt:     "2030-09-15 10:00:00",
		Recurrence: "weekly",
	}

	bodyBytes, _ := json.Marshal(reqBody)
	req := httptest.NewRequest(http.MethodPost, "/api/reminders", bytes.NewReader(bodyBytes))
	w := httptest.NewRecorder()

	c, _ := gin.CreateTestContext(w)
	c.Request = req

	mockService.EXPECT().
		CreateReminder(gomock.Any(), cfg.Retry, gomock.AssignableToTypeOf(model.Reminder{})).
		Return(uuid.Nil, reminderrepo.ErrDuplicateReminder)

	handler.Create(c)

	assert.Equal(t, http.StatusConflict, w.Result().StatusCode)
}

func TestHandler_List_Success(t *testing.T) {
	handler, mockService, _ := setupHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/reminders?owner=alice", nil)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req

	mockService.EXPECT().
		ListByOwner(gomock.Any(), "alice").
		Return([]model.Reminder{{Owner: "alice", Task: "water", Plant: "basil"}}, nil)

	handler.List(c)

	assert.Equal(t, http.StatusOK, w.Result().StatusCode)
}

func TestHandler_List_MissingOwner(t *testing.T) {
	handler, _, _ := setupHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/reminders", nil)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req

	handler.List(c)

	assert.Equal(t, http.StatusBadRequest, w.Result().StatusCode)
}

func TestHandler_GetStatus_Success(t *testing.T) {
	handler, mockService, cfg := setupHandler(t)
	id := uuid.New()

	req := httptest.NewRequest(http.MethodGet, "/api/reminders/"+id.String()+"/status", nil)
	w := httptest.NewRecorder()

	c, _ := gin.CreateTestContext(w)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: id.String()}}

	mockService.EXPECT().
		GetReminderStateByID(gomock.Any(), cfg.Retry, id).
		Return(model.StatePending, nil)

	handler.GetStatus(c)

	assert.Equal(t, http.StatusOK, w.Result().StatusCode)
}

func TestHandler_GetStatus_NotFound(t *testing.T) {
	handler, mockService, cfg := setupHandler(t)
	id := uuid.New()

	req := httptest.NewRequest(http.MethodGet, "/api/reminders/"+id.String()+"/status", nil)
	w := httptest.NewRecorder()

	c, _ := gin.CreateTestContext(w)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: id.String()}}

	mockService.EXPECT().
		GetReminderStateByID(gomock.Any(), cfg.Retry, id).
		Return(model.State(""), reminderrepo.ErrReminderNotFound)

	handler.GetStatus(c)

	assert.Equal(t, http.StatusNotFound, w.Result().StatusCode)
}

func TestHandler_Cancel_Success(t *testing.T) {
	handler, mockService, cfg := setupHandler(t)
	id := uuid.New()

	req := httptest.NewRequest(http.MethodPost, "/api/reminders/"+id.String()+"/cancel", nil)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: id.String()}}

	mockService.EXPECT().
		CancelReminder(gomock.Any(), cfg.Retry, id).
		Return(nil)

	handler.Cancel(c)

	assert.Equal(t, http.StatusOK, w.Result().StatusCode)
}

func TestHandler_Cancel_InvalidID(t *testing.T) {
	handler, _, _ := setupHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/reminders/not-a-uuid/cancel", nil)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "not-a-uuid"}}

	handler.Cancel(c)

	assert.Equal(t, http.StatusBadRequest, w.Result().StatusCode)
}

func TestHandler_Delete_Success(t *testing.T) {
	handler, mockService, _ := setupHandler(t)
	id := uuid.New()

	req := httptest.NewRequest(http.MethodDelete, "/api/reminders/"+id.String(), nil)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: id.String()}}

	mockService.EXPECT().
		DeleteReminder(gomock.Any(), id).
		Return(nil)

	handler.Delete(c)

	assert.Equal(t, http.StatusOK, w.Result().StatusCode)
}
