package delivery

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"lazla/internal/events"
	"lazla/internal/middleware"
	"lazla/internal/pkg/response"
	"lazla/internal/pkg/validator"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	pongWait     = 60 * time.Second
	pingInterval = 30 * time.Second
)

type Handler struct {
	service  *Service
	hub      *events.Hub
	upgrader websocket.Upgrader
	loggerf  func(format string, args ...interface{})
}

// NewHandler builds the delivery handler. hub may be nil, in which case the
// stream route answers 503. Browser origins outside allowedOrigins are
// refused on the stream upgrade.
func NewHandler(service *Service, hub *events.Hub, allowedOrigins []string, loggerf func(format string, args ...interface{})) *Handler {
	if loggerf == nil {
		loggerf = func(string, ...interface{}) {}
	}
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = struct{}{}
	}
	return &Handler{
		service: service,
		hub:     hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				_, ok := allowed[origin]
				return ok
			},
		},
		loggerf: loggerf,
	}
}

// RegisterRoutes mounts the staff routes on g. auth must accept staff access
// tokens; admin is applied after auth on the admin routes. streamAuth is the
// websocket variant of auth that also reads ?access_token.
func (h *Handler) RegisterRoutes(g *gin.RouterGroup, auth, streamAuth, admin gin.HandlerFunc) {
	g.GET("/admin", auth, admin, h.ListEvents)
	g.GET("/admin/stream", streamAuth, admin, h.Stream)
	g.GET("/purchase/:purchaseId", auth, h.EventsForPurchase)
	g.POST("/:purchaseId/attempt", auth, h.RecordAttempt)
	g.POST("/:purchaseId/collect", auth, h.ConfirmCollected)
}

func (h *Handler) RecordAttempt(c *gin.Context) {
	purchaseID, ok := purchaseIDParam(c)
	if !ok {
		return
	}
	var req DeliveryAttemptRequest
	if !bind(c, &req) {
		return
	}

	event, err := h.service.RecordDeliveryAttempt(c.Request.Context(), purchaseID, req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"event": event})
}

func (h *Handler) ConfirmCollected(c *gin.Context) {
	purchaseID, ok := purchaseIDParam(c)
	if !ok {
		return
	}
	var req ConfirmCODRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}
	if req.CollectedAmount == nil {
		response.BadRequest(c, ErrMissingAmount.Error())
		return
	}
	if fields := validator.Validate(&req); fields != nil {
		response.ErrorWithDetails(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request", fields)
		return
	}

	performedBy := middleware.AccountID(c)
	var by *int64
	if performedBy > 0 {
		by = &performedBy
	}

	res, err := h.service.ConfirmCODCollected(c.Request.Context(), purchaseID, req, by)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"event": res.Event, "previousStatus": res.PreviousStatus})
}

func (h *Handler) EventsForPurchase(c *gin.Context) {
	purchaseID, ok := purchaseIDParam(c)
	if !ok {
		return
	}
	events, err := h.service.EventsForPurchase(c.Request.Context(), purchaseID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (h *Handler) ListEvents(c *gin.Context) {
	page, _ := strconv.Atoi(c.Query("page"))
	limit, _ := strconv.Atoi(c.Query("limit"))

	res, err := h.service.ListEvents(c.Request.Context(), page, limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Stream upgrades to a websocket and keeps the staff member registered on
// the hub until the client goes away. The client never needs to send.
func (h *Handler) Stream(c *gin.Context) {
	if h.hub == nil {
		response.Error(c, http.StatusServiceUnavailable, "STREAM_UNAVAILABLE", "event stream disabled")
		return
	}
	staffID := middleware.AccountID(c)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.loggerf("level=warn msg=\"ws upgrade failed\" staff_id=%d err=%v", staffID, err)
		return
	}

	h.hub.Register(staffID, conn)
	h.loggerf("level=info msg=\"ws connected\" staff_id=%d online=%d", staffID, h.hub.OnlineCount())
	defer func() {
		h.hub.Unregister(staffID, conn)
		h.loggerf("level=info msg=\"ws disconnected\" staff_id=%d", staffID)
	}()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go pingLoop(conn, done)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.loggerf("level=warn msg=\"ws read failed\" staff_id=%d err=%v", staffID, err)
			}
			return
		}
	}
}

// pingLoop uses WriteControl, which may run alongside the hub's writer.
func pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		}
	}
}

func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrInvalidPurchaseID), errors.Is(err, ErrMissingAmount),
		errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrInvalidEventType):
		response.BadRequest(c, err.Error())
	case errors.Is(err, ErrPurchaseNotFound):
		response.Error(c, http.StatusNotFound, "NOT_FOUND", "purchase not found")
	default:
		h.loggerf("level=error msg=\"delivery request failed\" path=%s err=%v", c.FullPath(), err)
		_ = c.Error(err)
		response.Internal(c)
	}
}

func purchaseIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("purchaseId"), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(c, ErrInvalidPurchaseID.Error())
		return 0, false
	}
	return id, true
}

func bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		response.BadRequest(c, "invalid request body")
		return false
	}
	if fields := validator.Validate(req); fields != nil {
		response.ErrorWithDetails(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request", fields)
		return false
	}
	return true
}
