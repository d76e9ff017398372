package handler

import (
	"context"
	"os"
	"time"

	"ai-assistant-be/internal/pkg/logger"
	"ai-assistant-be/internal/pkg/serverutils"
	internalWS "ai-assistant-be/internal/websocket"
	"ai-assistant-be/pkg/events"
	pktNats "ai-assistant-be/pkg/nats"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// NoticeHandler owns the websocket endpoint used for out-of-band notices
// (watchlist captures, system broadcasts).
type NoticeHandler struct {
	publisher  *pktNats.Publisher
	subscriber *pktNats.Subscriber
	hub        *internalWS.Hub
	logger     logger.ILogger
}

func NewNoticeHandler(pub *pktNats.Publisher, sub *pktNats.Subscriber, hub *internalWS.Hub, log logger.ILogger) *NoticeHandler {
	return &NoticeHandler{
		publisher:  pub,
		subscriber: sub,
		hub:        hub,
		logger:     log,
	}
}

// Consume bridges turn-completed events from the bus to the websocket hub,
// so other instances' turns still produce a notice for connected clients.
func (h *NoticeHandler) Consume() error {
	if h.subscriber == nil {
		h.logger.Warn("NoticeHandler", "NATS subscriber unavailable, turn notices disabled", nil)
		return nil
	}
	return h.subscriber.Subscribe("events.TURN_COMPLETED", "notice-turn-completed", func(ctx context.Context, event events.Event) error {
		payload := event.Payload()
		userIDStr, _ := payload["user_id"].(string)
		userID, err := uuid.Parse(userIDStr)
		if err != nil {
			// Malformed event, nothing to deliver. Ack and move on.
			return nil
		}
		h.hub.Send(userID, internalWS.Notice{
			Type:  "turn_completed",
			Title: "Reply ready",
			Body:  "Your assistant has finished responding.",
		})
		return nil
	})
}

// ServeWs authenticates the handshake and upgrades the connection.
func (h *NoticeHandler) ServeWs(c *fiber.Ctx) error {
	// Token via query param (browser standard) or Authorization header.
	tokenStr := c.Query("token")
	if tokenStr == "" {
		authHeader := c.Get("Authorization")
		if len(authHeader) > 7 && authHeader[:7] == "Bearer " {
			tokenStr = authHeader[7:]
		}
	}
	if tokenStr == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Missing token (Query 'token' or Header 'Authorization')"})
	}

	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fiber.ErrUnauthorized
		}
		return []byte(os.Getenv("JWT_SECRET")), nil
	})
	if err != nil || !token.Valid {
		h.logger.Warn("NoticeHandler", "Invalid token in WS handshake", map[string]interface{}{"error": err})
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token claims"})
	}
	userIDStr, ok := claims["user_id"].(string)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Token missing user_id"})
	}
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid user ID format in token"})
	}

	if websocket.IsWebSocketUpgrade(c) {
		return websocket.New(func(c *websocket.Conn) {
			h.logger.Info("NoticeHandler", "Starting WebSocket session", map[string]interface{}{"user_id": userID})
			internalWS.ServeWs(h.hub, c, userID)
			h.logger.Info("NoticeHandler", "WebSocket session ended", map[string]interface{}{"user_id": userID})
		})(c)
	}
	return fiber.ErrUpgradeRequired
}

// Broadcast pushes a system-wide notice to all connected clients and records
// the event on the bus.
func (h *NoticeHandler) Broadcast(c *fiber.Ctx) error {
	type Request struct {
		Title   string `json:"title"`
		Message string `json:"message"`
	}
	var req Request
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if req.Title == "" || req.Message == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Title and Message are required"})
	}

	h.hub.Broadcast(internalWS.Notice{
		Type:  "system_broadcast",
		Title: req.Title,
		Body:  req.Message,
	})

	if h.publisher != nil {
		evt := events.BaseEvent{
			Type: "SYSTEM_BROADCAST",
			Data: map[string]interface{}{
				"title":   req.Title,
				"message": req.Message,
			},
			OccurredAt: time.Now(),
		}
		if err := h.publisher.Publish(c.UserContext(), evt); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
	}

	return c.JSON(fiber.Map{"status": "Broadcast Queued"})
}

// RegisterRoutes registers the notice routes.
func (h *NoticeHandler) RegisterRoutes(router fiber.Router) {
	notices := router.Group("/notices")
	notices.Use(serverutils.JwtMiddleware)
	notices.Post("/broadcast", h.Broadcast)

	// WebSocket
	router.Get("/ws", h.ServeWs)
}
