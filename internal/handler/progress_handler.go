package handler

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/vidya-labs/vidya-go-api/internal/service"
	"github.com/vidya-labs/vidya-go-api/internal/utils"
)

const progressWriteTimeout = 10 * time.Second

// ProgressHandler streams extraction progress events to websocket clients.
// Events originate on the document's progress subject; a client connecting
// mid-run receives every event from that point on.
type ProgressHandler struct {
	events    service.ProgressEvents
	documents service.DocumentService
	logger    zerolog.Logger
}

// NewProgressHandler constructs the handler.
func NewProgressHandler(events service.ProgressEvents, documents service.DocumentService, logger zerolog.Logger) *ProgressHandler {
	return &ProgressHandler{
		events:    events,
		documents: documents,
		logger:    logger.With().Str("component", "progress_handler").Logger(),
	}
}

// Register wires the websocket upgrade route.
func (h *ProgressHandler) Register(router fiber.Router) {
	router.Use("/:publicID/progress/ws", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		if h.events == nil {
			return utils.SendError(c, fiber.StatusServiceUnavailable, "progress streaming is not enabled")
		}

		publicID := c.Params("publicID")
		if _, err := h.documents.GetByPublicID(requestContext(c), publicID); err != nil {
			if errors.Is(err, service.ErrDocumentNotFound) {
				return utils.SendError(c, fiber.StatusNotFound, "document not found")
			}
			return utils.SendError(c, fiber.StatusInternalServerError, "failed to fetch document")
		}

		return c.Next()
	})
	router.Get("/:publicID/progress/ws", websocket.New(h.stream))
}

func (h *ProgressHandler) stream(conn *websocket.Conn) {
	defer conn.Close()

	publicID := conn.Params("publicID")
	subject := service.ProgressSubject(publicID)

	events := make(chan []byte, 16)
	sub, err := h.events.Subscribe(subject, func(payload []byte) {
		select {
		case events <- payload:
		default:
			// A slow client drops events rather than stalling the
			// subscription; the next event supersedes the lost one anyway.
		}
	})
	if err != nil {
		h.logger.Error().Err(err).Str("subject", subject).Msg("progress subscription failed")
		return
	}
	defer func() {
		_ = sub.Unsubscribe()
	}()

	h.logger.Info().Str("document", publicID).Msg("progress stream connected")

	// Reads only serve to detect the peer closing the socket.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case payload := <-events:
			_ = conn.SetWriteDeadline(time.Now().Add(progressWriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				h.logger.Debug().Err(err).Str("document", publicID).Msg("progress stream write failed")
				return
			}
		case <-closed:
			h.logger.Info().Str("document", publicID).Msg("progress stream disconnected")
			return
		}
	}
}
