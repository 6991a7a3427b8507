package http

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/wusimpl/hackernewscn/internal/handler"
)

func NewRouter(
	storyHandler *handler.StoryHandler,
	statusHandler *handler.StatusHandler,
	settingsHandler *handler.SettingsHandler,
	eventsHandler *handler.EventsHandler,
) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.Logger())
	e.Use(middleware.CORS())

	api := e.Group("/api")
	storyHandler.RegisterRoutes(api)
	statusHandler.RegisterRoutes(api)
	settingsHandler.RegisterRoutes(api)
	eventsHandler.RegisterRoutes(api)

	return e
}
