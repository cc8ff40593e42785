package router

import (
	"github.com/wb-go/wbf/ginext"

	"github.com/agroaid/plant-reminder/internal/api/handlers/reminder"
)

// New builds the HTTP router for the reminder API.
func New(handler *reminder.Handler) *ginext.Engine {
	e := ginext.New()
	e.Use(ginext.Logger())
	e.Use(ginext.Recovery())

	api := e.Group("/api/reminders")

	api.POST("", handler.Create)
	api.GET("", handler.List)
	api.GET("/:id/status", handler.GetStatus)
	api.POST("/:id/cancel", handler.Cancel)
	api.DELETE("/:id", handler.Delete)

	return e
}
