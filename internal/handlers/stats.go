package handlers

import (
	"context"

	"patientvitals/internal/pipeline"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// DropCounter reads persisted per-reason drop counts
type DropCounter interface {
	Counts(ctx context.Context) (map[string]int64, error)
}

// StatsResponse body of GET /stats
type StatsResponse struct {
	Pipeline pipeline.StatsSnapshot `json:"pipeline"`
	// Drops counts persisted across restarts; omitted when drop stats are off
	Drops map[string]int64 `json:"drops,omitempty"`
}

// StatsHandler exposes pipeline counters
type StatsHandler struct {
	stats  *pipeline.Stats
	drops  DropCounter
	logger *zap.Logger
}

// NewStatsHandler creates a stats handler. drops may be nil.
func NewStatsHandler(stats *pipeline.Stats, drops DropCounter, logger *zap.Logger) *StatsHandler {
	return &StatsHandler{stats: stats, drops: drops, logger: logger}
}

// GetStats handles GET /stats
func (h *StatsHandler) GetStats(c *fiber.Ctx) error {
	resp := StatsResponse{Pipeline: h.stats.Snapshot()}

	if h.drops != nil {
		counts, err := h.drops.Counts(c.UserContext())
		if err != nil {
			h.logger.Error("Failed to read drop counts", zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to read drop counts",
			})
		}
		resp.Drops = counts
	}

	return c.JSON(resp)
}
