package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/wusimpl/hackernewscn/internal/model"
	"github.com/wusimpl/hackernewscn/internal/queue"
	"github.com/wusimpl/hackernewscn/internal/repository"
	"github.com/wusimpl/hackernewscn/internal/scheduler"
)

type StatusHandler struct {
	status        repository.SchedulerStatusRepository
	queue         *queue.Queue
	pipelineSched *scheduler.Scheduler
}

func NewStatusHandler(status repository.SchedulerStatusRepository, q *queue.Queue, pipelineSched *scheduler.Scheduler) *StatusHandler {
	return &StatusHandler{status: status, queue: q, pipelineSched: pipelineSched}
}

func (h *StatusHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/status", h.Get)
	g.POST("/refresh", h.TriggerRefresh)
	g.POST("/queue/pause", h.PauseQueue)
	g.POST("/queue/resume", h.ResumeQueue)
	g.POST("/queue/clear", h.ClearQueue)
}

type statusResponse struct {
	Scheduler *model.SchedulerStatus `json:"scheduler"`
	Queue     queue.Status           `json:"queue"`
}

type refreshStartedResponse struct {
	Status string `json:"status"`
}

// Get reports the last pipeline run and the queue state.
func (h *StatusHandler) Get(c echo.Context) error {
	status, err := h.status.Get(c.Request().Context())
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, statusResponse{
		Scheduler: status,
		Queue:     h.queue.Status(),
	})
}

// TriggerRefresh kicks off one pipeline run outside the schedule.
func (h *StatusHandler) TriggerRefresh(c echo.Context) error {
	go h.pipelineSched.RunOnce()
	return c.JSON(http.StatusAccepted, refreshStartedResponse{Status: "started"})
}

func (h *StatusHandler) PauseQueue(c echo.Context) error {
	h.queue.Pause()
	return c.JSON(http.StatusOK, h.queue.Status())
}

func (h *StatusHandler) ResumeQueue(c echo.Context) error {
	h.queue.Resume()
	return c.JSON(http.StatusOK, h.queue.Status())
}

func (h *StatusHandler) ClearQueue(c echo.Context) error {
	h.queue.Clear(c.Request().Context())
	return c.JSON(http.StatusOK, h.queue.Status())
}
