package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Harsh-BH/codr/internal/domain"
	"github.com/Harsh-BH/codr/internal/events"
	"github.com/Harsh-BH/codr/internal/usecase"
)

const (
	writeWait        = 10 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = (pongWait * 9) / 10
	maxClientMessage = 64 << 10
)

// clientMessage is what a client may send over the stream socket.
type clientMessage struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

// StreamHandler serves live execution events over WebSocket and accepts
// input for the running process on the same socket.
type StreamHandler struct {
	getJobUC   *usecase.GetJobUsecase
	inputUC    *usecase.SendInputUsecase
	subscriber events.Subscriber
	upgrader   websocket.Upgrader
	logger     *zap.Logger
}

// NewStreamHandler creates a new StreamHandler.
func NewStreamHandler(
	getJobUC *usecase.GetJobUsecase,
	inputUC *usecase.SendInputUsecase,
	subscriber events.Subscriber,
	checkOrigin func(r *http.Request) bool,
	logger *zap.Logger,
) *StreamHandler {
	return &StreamHandler{
		getJobUC:   getJobUC,
		inputUC:    inputUC,
		subscriber: subscriber,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
		logger: logger,
	}
}

// Stream handles GET /api/v1/jobs/:id/stream (WebSocket upgrade)
func (h *StreamHandler) Stream(c *gin.Context) {
	id, ok := jobID(c)
	if !ok {
		return
	}
	log := h.logger.With(zap.String("job_id", id.String()))

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// Subscribe before reading the stored state so a terminal event cannot
	// fall between the two.
	sub, err := h.subscriber.Subscribe(ctx, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	defer sub.Close()

	job, err := h.getJobUC.Execute(ctx, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	log.Debug("WebSocket connection opened")

	if job.Status.IsTerminal() {
		if err := writeEvent(conn, storedTerminalEvent(job)); err == nil {
			closeNormally(conn, "job finished")
		}
		return
	}

	go h.readLoop(ctx, cancel, conn, id, log)
	h.writeLoop(ctx, conn, sub, id, log)
}

func (h *StreamHandler) writeLoop(ctx context.Context, conn *websocket.Conn, sub *events.Subscription, id uuid.UUID, log *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Debug("WebSocket ping failed", zap.Error(err))
				return
			}

		case ev, ok := <-sub.Events():
			if !ok {
				// Evicted or detached without a terminal event.
				if ctx.Err() != nil {
					return
				}
				h.finishFromStore(ctx, conn, id, log)
				return
			}
			if err := writeEvent(conn, ev); err != nil {
				log.Debug("WebSocket write failed (client disconnected)", zap.Error(err))
				return
			}
			if ev.IsTerminal() {
				closeNormally(conn, "job finished")
				return
			}
		}
	}
}

// finishFromStore closes a stream that lost its subscription, sending the
// stored terminal state when there is one.
func (h *StreamHandler) finishFromStore(ctx context.Context, conn *websocket.Conn, id uuid.UUID, log *zap.Logger) {
	job, err := h.getJobUC.Execute(ctx, id)
	if err == nil && job.Status.IsTerminal() {
		if writeEvent(conn, storedTerminalEvent(job)) == nil {
			closeNormally(conn, "job finished")
		}
		return
	}
	log.Warn("Event stream ended before the job finished")
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "stream interrupted"),
		time.Now().Add(writeWait))
}

func (h *StreamHandler) readLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, id uuid.UUID, log *zap.Logger) {
	defer cancel()

	conn.SetReadLimit(maxClientMessage)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg clientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("WebSocket read failed", zap.Error(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		if msg.Type != "input" {
			log.Debug("Ignoring client message", zap.String("type", msg.Type))
			continue
		}
		if _, err := h.inputUC.Execute(ctx, id, []byte(msg.Data)); err != nil {
			log.Warn("Failed to forward input", zap.Error(err))
		}
	}
}

func writeEvent(conn *websocket.Conn, ev domain.Event) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(ev)
}

func closeNormally(conn *websocket.Conn, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason),
		time.Now().Add(writeWait))
}

// storedTerminalEvent rebuilds the terminal event of a finished job.
func storedTerminalEvent(job *domain.Job) domain.Event {
	if job.Status == domain.StatusCompleted && job.Result != nil {
		return domain.CompleteEvent(job.ID, job.Result.ExitCode, job.Result.ExecutionTime)
	}
	message := job.Error
	if message == "" {
		message = domain.ErrExecutionFailed.Error()
	}
	return domain.ErrorEvent(job.ID, message)
}
