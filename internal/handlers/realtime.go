package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/mahidalhan/axon/internal/eeg"
	"github.com/mahidalhan/axon/internal/stream"
	"go.uber.org/zap"
)

const (
	wsWriteWait  = 5 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

// RealtimeOptions are read on every request, so a config reload applies to
// new requests and running push loops alike.
type RealtimeOptions struct {
	Simulation      bool
	DiscoverTimeout time.Duration
	PushInterval    time.Duration
}

type RealtimeHandler struct {
	log      *zap.Logger
	registry *stream.Registry
	options  func() RealtimeOptions
	upgrader websocket.Upgrader
}

func NewRealtimeHandler(log *zap.Logger, registry *stream.Registry, options func() RealtimeOptions) *RealtimeHandler {
	return &RealtimeHandler{
		log:      log,
		registry: registry,
		options:  options,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Discover lists connectable headbands. ?simulation= and ?timeout= (seconds)
// override the configured defaults.
func (h *RealtimeHandler) Discover(c *gin.Context) {
	opts := h.options()
	simulation := opts.Simulation
	if v := c.Query("simulation"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid simulation flag"})
			return
		}
		simulation = b
	}
	timeout := opts.DiscoverTimeout
	if v := c.Query("timeout"); v != "" {
		secs, err := strconv.ParseFloat(v, 64)
		if err != nil || secs <= 0 || secs > 60 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Timeout must be between 0 and 60 seconds"})
			return
		}
		timeout = time.Duration(secs * float64(time.Second))
	}

	devices, err := h.registry.Discover(c.Request.Context(), simulation, timeout)
	if err != nil {
		h.log.Error("Failed to discover devices", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Discovery failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"devices": devices, "count": len(devices)})
}

// Connect opens a new connection. An empty body uses the configured mode.
func (h *RealtimeHandler) Connect(c *gin.Context) {
	req := stream.ConnectRequest{Simulation: h.options().Simulation}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid connect request"})
			return
		}
	}
	if !req.Simulation && req.Address == "" && req.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Device address or name is required"})
		return
	}

	// The stream outlives the request.
	m, err := h.registry.Connect(context.WithoutCancel(c.Request.Context()), req)
	if err != nil {
		h.log.Error("Failed to connect device", zap.String("address", req.Address), zap.Error(err))
		status := http.StatusInternalServerError
		if errors.Is(err, stream.ErrOpenChannel) {
			status = http.StatusBadGateway
		}
		c.JSON(status, gin.H{"error": "Connection failed: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"connection_id":   m.ID(),
		"connected":       m.Connected(),
		"message":         "Connected successfully",
		"simulation_mode": req.Simulation,
	})
}

func (h *RealtimeHandler) Disconnect(c *gin.Context) {
	if err := h.registry.Disconnect(c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No device connected"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Disconnected successfully"})
}

func (h *RealtimeHandler) Status(c *gin.Context) {
	m, ok := h.manager(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, m.Status())
}

func (h *RealtimeHandler) List(c *gin.Context) {
	managers := h.registry.List()
	out := make([]stream.Status, len(managers))
	for i, m := range managers {
		out[i] = m.Status()
	}
	c.JSON(http.StatusOK, gin.H{"connections": out, "count": len(out)})
}

func (h *RealtimeHandler) CurrentLRI(c *gin.Context) {
	m, ok := h.connectedManager(c)
	if !ok {
		return
	}
	cur, ok := m.CurrentLRI()
	if !ok {
		c.JSON(http.StatusOK, gin.H{"message": "LRI data not yet available", "data": nil})
		return
	}
	c.JSON(http.StatusOK, cur)
}

func (h *RealtimeHandler) CurrentBandPower(c *gin.Context) {
	m, ok := h.connectedManager(c)
	if !ok {
		return
	}
	snap, ok := m.CurrentBandPower()
	if !ok {
		c.JSON(http.StatusOK, gin.H{"message": "Band power data not yet available", "data": nil})
		return
	}
	c.JSON(http.StatusOK, bandPowerPayload(snap))
}

func bandPowerPayload(s eeg.BandPowerSnapshot) gin.H {
	out := gin.H{"timestamp": s.Timestamp}
	for k, v := range s.Flat() {
		out[k] = v
	}
	return out
}

// LRIStream pushes the current LRI every push interval.
func (h *RealtimeHandler) LRIStream(c *gin.Context) {
	h.push(c, "lri_update", func(m *stream.Manager) (any, bool) {
		return m.CurrentLRI()
	})
}

// BandPowerStream pushes the current band powers every push interval.
func (h *RealtimeHandler) BandPowerStream(c *gin.Context) {
	h.push(c, "bandpower_update", func(m *stream.Manager) (any, bool) {
		snap, ok := m.CurrentBandPower()
		if !ok {
			return nil, false
		}
		return bandPowerPayload(snap), true
	})
}

// push upgrades the request and polls the connection until the client goes
// away. A closed or unknown connection yields an error frame and a slower
// poll; a connection without data yet yields a "waiting" frame.
func (h *RealtimeHandler) push(c *gin.Context, kind string, read func(*stream.Manager) (any, bool)) {
	id := c.Param("id")
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("WebSocket upgrade failed", zap.String("connection", id), zap.Error(err))
		return
	}
	defer conn.Close()
	log := h.log.With(zap.String("connection", id), zap.String("stream", kind))
	log.Info("WebSocket client connected")

	// Reader: only control frames are expected; any read error ends the loop.
	done := make(chan struct{})
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-done:
			log.Info("WebSocket client disconnected")
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		case <-timer.C:
			interval := h.options().PushInterval
			msg := h.frame(id, kind, read)
			if _, failed := msg["error"]; failed {
				interval *= 2
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(msg); err != nil {
				log.Debug("WebSocket write failed", zap.Error(err))
				return
			}
			timer.Reset(interval)
		}
	}
}

func (h *RealtimeHandler) frame(id, kind string, read func(*stream.Manager) (any, bool)) gin.H {
	now := time.Now().UTC()
	m, ok := h.registry.Get(id)
	if !ok || !m.Connected() {
		return gin.H{"error": "No device connected", "timestamp": now}
	}
	data, ok := read(m)
	if !ok {
		return gin.H{"type": "waiting", "message": "Waiting for data...", "timestamp": now}
	}
	return gin.H{"type": kind, "data": data, "timestamp": now}
}

func (h *RealtimeHandler) manager(c *gin.Context) (*stream.Manager, bool) {
	m, ok := h.registry.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "No device connected"})
		return nil, false
	}
	return m, true
}

func (h *RealtimeHandler) connectedManager(c *gin.Context) (*stream.Manager, bool) {
	m, ok := h.manager(c)
	if !ok {
		return nil, false
	}
	if !m.Connected() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Device not connected"})
		return nil, false
	}
	return m, true
}
