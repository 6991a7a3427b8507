package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/wusimpl/hackernewscn/internal/model"
	"github.com/wusimpl/hackernewscn/internal/service"
)

const (
	defaultListLimit = 30
	maxListLimit     = 100
)

type StoryHandler struct {
	service service.StoryService
}

func NewStoryHandler(service service.StoryService) *StoryHandler {
	return &StoryHandler{service: service}
}

func (h *StoryHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/stories", h.List)
	g.GET("/stories/:id", h.GetByID)
	g.GET("/stories/:id/comments", h.GetComments)
}

type storyListResponse struct {
	Stories []model.StoryView `json:"stories"`
}

type commentsResponse struct {
	Comments []*model.CommentNode `json:"comments"`
}

// List returns translated stories, newest first.
func (h *StoryHandler) List(c echo.Context) error {
	limit := parseIntQuery(c, "limit", defaultListLimit)
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset := parseIntQuery(c, "offset", 0)

	stories, err := h.service.ListStories(c.Request().Context(), limit, offset)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, storyListResponse{Stories: stories})
}

// GetByID returns one story with its article translation.
func (h *StoryHandler) GetByID(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return Error(c, http.StatusBadRequest, "invalid story id")
	}
	detail, err := h.service.GetStory(c.Request().Context(), id)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, detail)
}

// GetComments returns the story's comment tree with translations.
func (h *StoryHandler) GetComments(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return Error(c, http.StatusBadRequest, "invalid story id")
	}
	comments, err := h.service.GetComments(c.Request().Context(), id)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, commentsResponse{Comments: comments})
}
