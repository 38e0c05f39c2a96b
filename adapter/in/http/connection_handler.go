package http

import (
	"strconv"

	"voiceout_server/core/port/in"
	"voiceout_server/pkg/apperr"
	"voiceout_server/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// ConnectionHandler serves connection management and audit reads.
type ConnectionHandler struct {
	connections in.ConnectionUseCase
}

func NewConnectionHandler(connections in.ConnectionUseCase) *ConnectionHandler {
	return &ConnectionHandler{connections: connections}
}

// Register registers connection routes.
func (h *ConnectionHandler) Register(router fiber.Router) {
	group := router.Group("/connections")
	group.Get("/", h.List)
	group.Get("/:id", h.Get)
	group.Post("/:id/disconnect", h.Disconnect)
	group.Get("/:id/sync-logs", h.ListSyncLogs)
	group.Get("/:id/inquiries", h.ListInquiries)
}

// List lists the authenticated tent's connections.
func (h *ConnectionHandler) List(c *fiber.Ctx) error {
	tentID, ok := c.Locals("tent_id").(uuid.UUID)
	if !ok {
		return apperr.Unauthorized("")
	}

	connections, err := h.connections.ListConnections(c.Context(), tentID)
	if err != nil {
		return err
	}
	return response.OK(c, connections)
}

// Get returns one connection.
func (h *ConnectionHandler) Get(c *fiber.Ctx) error {
	id, err := parseIDParam(c)
	if err != nil {
		return err
	}

	conn, err := h.connections.GetConnection(c.Context(), id)
	if err != nil {
		return err
	}
	return response.OK(c, conn)
}

// Disconnect deactivates a connection and discards its credentials.
func (h *ConnectionHandler) Disconnect(c *fiber.Ctx) error {
	id, err := parseIDParam(c)
	if err != nil {
		return err
	}

	if err := h.connections.Disconnect(c.Context(), id); err != nil {
		return err
	}
	return response.OK(c, fiber.Map{"disconnected": true})
}

// ListSyncLogs returns recent sync audit records for a connection.
func (h *ConnectionHandler) ListSyncLogs(c *fiber.Ctx) error {
	id, err := parseIDParam(c)
	if err != nil {
		return err
	}

	logs, err := h.connections.ListSyncLogs(c.Context(), id, c.QueryInt("limit", 20))
	if err != nil {
		return err
	}
	return response.OK(c, logs)
}

// ListInquiries returns recent inquiries for a connection.
func (h *ConnectionHandler) ListInquiries(c *fiber.Ctx) error {
	id, err := parseIDParam(c)
	if err != nil {
		return err
	}

	inquiries, err := h.connections.ListInquiries(c.Context(), id, c.QueryInt("limit", 50))
	if err != nil {
		return err
	}
	return response.OK(c, inquiries)
}

func parseIDParam(c *fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("invalid connection id")
	}
	return id, nil
}
