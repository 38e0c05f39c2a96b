// Package http implements the inbound HTTP adapters.
package http

import (
	"strconv"

	"voiceout_server/core/port/in"
	"voiceout_server/pkg/apperr"

	"github.com/gofiber/fiber/v2"
)

// SyncHandler triggers the sync pipeline.
type SyncHandler struct {
	sync in.SyncUseCase
}

func NewSyncHandler(sync in.SyncUseCase) *SyncHandler {
	return &SyncHandler{sync: sync}
}

// Register registers sync routes.
func (h *SyncHandler) Register(router fiber.Router) {
	router.Post("/sync", h.Sync)
}

type syncRequest struct {
	ConnectionID string `json:"connectionId"`
}

// Sync runs one sync for the requested connection.
// @Summary Trigger email sync
// @Tags Sync
// @Accept json
// @Produce json
// @Param request body syncRequest true "Connection to sync"
// @Success 200 {object} in.SyncResult
// @Router /api/v1/sync [post]
func (h *SyncHandler) Sync(c *fiber.Ctx) error {
	var req syncRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.Validation("invalid request body")
	}
	if req.ConnectionID == "" {
		return apperr.MissingField("connectionId")
	}
	connectionID, err := strconv.ParseInt(req.ConnectionID, 10, 64)
	if err != nil || connectionID <= 0 {
		return apperr.Validation("connectionId must be a positive integer")
	}

	result, err := h.sync.SyncConnection(c.Context(), connectionID)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success":          true,
		"emailsFetched":    result.EmailsFetched,
		"inquiriesCreated": result.InquiriesCreated,
	})
}
