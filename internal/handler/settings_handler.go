package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/wusimpl/hackernewscn/internal/llm"
	"github.com/wusimpl/hackernewscn/internal/scheduler"
	"github.com/wusimpl/hackernewscn/internal/service"
)

type SettingsHandler struct {
	settings     service.SettingsService
	prompts      *llm.Registry
	pipelineSch  *scheduler.Scheduler
	refreshSched *scheduler.Scheduler
}

func NewSettingsHandler(
	settings service.SettingsService,
	prompts *llm.Registry,
	pipelineSched *scheduler.Scheduler,
	refreshSched *scheduler.Scheduler,
) *SettingsHandler {
	return &SettingsHandler{
		settings:     settings,
		prompts:      prompts,
		pipelineSch:  pipelineSched,
		refreshSched: refreshSched,
	}
}

func (h *SettingsHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/settings", h.Get)
	g.PUT("/settings", h.Update)
	g.GET("/settings/providers", h.GetProviders)
	g.PUT("/settings/providers", h.SetProviders)
}

type settingsResponse struct {
	SchedulerIntervalMs      int64  `json:"schedulerIntervalMs"`
	StoryLimit               int    `json:"storyLimit"`
	CommentRefreshEnabled    bool   `json:"commentRefreshEnabled"`
	CommentRefreshIntervalMs int64  `json:"commentRefreshIntervalMs"`
	CommentRefreshStoryLimit int    `json:"commentRefreshStoryLimit"`
	CommentRefreshBatchSize  int    `json:"commentRefreshBatchSize"`
	MaxCommentTranslations   int    `json:"maxCommentTranslations"`
	ArticlePrompt            string `json:"articlePrompt"`
	TLDRPrompt               string `json:"tldrPrompt"`
	CommentPrompt            string `json:"commentPrompt"`
}

type settingsRequest struct {
	SchedulerIntervalMs      *int64  `json:"schedulerIntervalMs,omitempty"`
	StoryLimit               *int    `json:"storyLimit,omitempty"`
	CommentRefreshEnabled    *bool   `json:"commentRefreshEnabled,omitempty"`
	CommentRefreshIntervalMs *int64  `json:"commentRefreshIntervalMs,omitempty"`
	CommentRefreshStoryLimit *int    `json:"commentRefreshStoryLimit,omitempty"`
	CommentRefreshBatchSize  *int    `json:"commentRefreshBatchSize,omitempty"`
	ArticlePrompt            *string `json:"articlePrompt,omitempty"`
	TLDRPrompt               *string `json:"tldrPrompt,omitempty"`
	CommentPrompt            *string `json:"commentPrompt,omitempty"`
}

// Get returns the runtime configuration with the effective prompts.
func (h *SettingsHandler) Get(c echo.Context) error {
	ctx := c.Request().Context()

	articlePrompt, err := h.prompts.ArticlePrompt(ctx)
	if err != nil {
		return writeServiceError(c, err)
	}
	tldrPrompt, err := h.prompts.TLDRPrompt(ctx)
	if err != nil {
		return writeServiceError(c, err)
	}
	commentPrompt, err := h.prompts.CommentPrompt(ctx)
	if err != nil {
		return writeServiceError(c, err)
	}

	return c.JSON(http.StatusOK, settingsResponse{
		SchedulerIntervalMs:      h.settings.SchedulerInterval(ctx).Milliseconds(),
		StoryLimit:               h.settings.StoryLimit(ctx),
		CommentRefreshEnabled:    h.settings.CommentRefreshEnabled(ctx),
		CommentRefreshIntervalMs: h.settings.CommentRefreshInterval(ctx).Milliseconds(),
		CommentRefreshStoryLimit: h.settings.CommentRefreshStoryLimit(ctx),
		CommentRefreshBatchSize:  h.settings.CommentRefreshBatchSize(ctx),
		MaxCommentTranslations:   h.settings.MaxCommentTranslations(ctx),
		ArticlePrompt:            articlePrompt,
		TLDRPrompt:               tldrPrompt,
		CommentPrompt:            commentPrompt,
	})
}

// Update applies the given settings. Interval changes restart the
// affected schedulers.
func (h *SettingsHandler) Update(c echo.Context) error {
	var req settingsRequest
	if err := c.Bind(&req); err != nil {
		return Error(c, http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()

	if req.SchedulerIntervalMs != nil {
		interval := time.Duration(*req.SchedulerIntervalMs) * time.Millisecond
		if err := h.settings.SetSchedulerInterval(ctx, interval); err != nil {
			return writeServiceError(c, err)
		}
		h.pipelineSch.Restart(interval)
	}
	if req.StoryLimit != nil {
		if err := h.settings.SetStoryLimit(ctx, *req.StoryLimit); err != nil {
			return Error(c, http.StatusBadRequest, err.Error())
		}
	}
	if req.CommentRefreshEnabled != nil || req.CommentRefreshIntervalMs != nil {
		enabled := h.settings.CommentRefreshEnabled(ctx)
		if req.CommentRefreshEnabled != nil {
			enabled = *req.CommentRefreshEnabled
		}
		interval := h.settings.CommentRefreshInterval(ctx)
		if req.CommentRefreshIntervalMs != nil {
			interval = time.Duration(*req.CommentRefreshIntervalMs) * time.Millisecond
		}
		if err := h.settings.SetCommentRefresh(ctx, enabled, interval); err != nil {
			return writeServiceError(c, err)
		}
		if req.CommentRefreshIntervalMs != nil {
			h.refreshSched.Restart(interval)
		}
	}
	if req.CommentRefreshStoryLimit != nil {
		if err := h.settings.SetCommentRefreshStoryLimit(ctx, *req.CommentRefreshStoryLimit); err != nil {
			return Error(c, http.StatusBadRequest, err.Error())
		}
	}
	if req.CommentRefreshBatchSize != nil {
		if err := h.settings.SetCommentRefreshBatchSize(ctx, *req.CommentRefreshBatchSize); err != nil {
			return Error(c, http.StatusBadRequest, err.Error())
		}
	}
	if err := h.prompts.UpdatePrompts(ctx, req.ArticlePrompt, req.TLDRPrompt, req.CommentPrompt); err != nil {
		return writeServiceError(c, err)
	}

	return h.Get(c)
}

// GetProviders returns the provider list with masked API keys.
func (h *SettingsHandler) GetProviders(c echo.Context) error {
	providers, err := h.settings.GetProviders(c.Request().Context())
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, providers)
}

// SetProviders replaces the provider list.
func (h *SettingsHandler) SetProviders(c echo.Context) error {
	var req service.ProvidersSettings
	if err := c.Bind(&req); err != nil {
		return Error(c, http.StatusBadRequest, "invalid request body")
	}
	for _, p := range req.Providers {
		if p.Name == "" {
			return Error(c, http.StatusBadRequest, "provider name is required")
		}
	}
	if err := h.settings.SetProviders(c.Request().Context(), &req); err != nil {
		return writeServiceError(c, err)
	}
	return h.GetProviders(c)
}
