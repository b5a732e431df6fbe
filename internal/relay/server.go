package relay

import (
	"bufio"
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"

	"quizmesh/internal/config"
	"quizmesh/internal/domain"
)

// Server is the relay's HTTP server
type Server struct {
	server   *http.Server
	hub      *Hub
	config   *config.Config
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewServer creates the relay HTTP server
func NewServer(cfg *config.Config, hub *Hub, logger *slog.Logger) *Server {
	s := &Server{
		hub:    hub,
		config: cfg,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Peers connect from arbitrary origins
				return true
			},
		},
	}

	s.server = &http.Server{
		Addr:        cfg.GetAddr(),
		Handler:     s.Handler(),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	return s
}

// Handler returns the routed handler with middleware applied
func (s *Server) Handler() http.Handler {
	router := httprouter.New()
	router.GET("/ws", s.handleWebSocket)
	router.GET("/api/health", s.handleHealth)
	router.GET("/api/stats", s.handleStats)
	router.GET("/api/rooms/:code", s.handleGetRoom)
	router.GET("/api/rooms/:code/qr", s.handleRoomQR)

	return s.middleware(router)
}

// middleware wraps the handler with logging and CORS headers
func (s *Server) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		level := slog.LevelDebug
		if s.config.IsDevelopment() {
			level = slog.LevelInfo
		}
		s.logger.Log(r.Context(), level, "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.statusCode,
			"duration", time.Since(start),
		)
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("relay starting", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("relay shutting down")
	return s.server.Shutdown(ctx)
}

// handleWebSocket upgrades GET /ws and runs the connection until it closes
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	peerID := uuid.NewString()
	s.logger.Debug("websocket connected", "peerID", peerID, "remote", r.RemoteAddr)

	NewConn(conn, s.hub, peerID, s.logger).Run()
}

// RoomResponse is the response for GET /api/rooms/:code
type RoomResponse struct {
	Code    string `json:"code"`
	Members int    `json:"members"`
}

// StatsResponse is the response for GET /api/stats
type StatsResponse struct {
	Rooms int `json:"rooms"`
	Peers int `json:"peers"`
}

// HealthResponse is the response for GET /api/health
type HealthResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is returned with every non-2xx JSON response
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s.sendJSON(w, http.StatusOK, &HealthResponse{Status: "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s.sendJSON(w, http.StatusOK, &StatsResponse{
		Rooms: s.hub.GetRoomCount(),
		Peers: s.hub.GetTotalPeerCount(),
	})
}

func (s *Server) handleGetRoom(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	code := domain.NormalizeSessionCode(p.ByName("code")).String()

	members, ok := s.hub.MemberCount(code)
	if !ok {
		s.sendJSON(w, http.StatusNotFound, &ErrorResponse{Code: "ROOM_NOT_FOUND", Message: "Room not found"})
		return
	}

	s.sendJSON(w, http.StatusOK, &RoomResponse{Code: code, Members: members})
}

// handleRoomQR renders the session code as a PNG so a second device can scan it
func (s *Server) handleRoomQR(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	code := domain.NormalizeSessionCode(p.ByName("code"))
	if !domain.ValidSessionCode(code, s.config.Game.SessionCodeLength) {
		s.sendJSON(w, http.StatusBadRequest, &ErrorResponse{Code: "INVALID_CODE", Message: "Invalid session code"})
		return
	}

	png, err := qrcode.Encode(code.String(), qrcode.Medium, 256)
	if err != nil {
		s.logger.Error("qr encode failed", "code", code, "error", err)
		s.sendJSON(w, http.StatusInternalServerError, &ErrorResponse{Code: "INTERNAL_ERROR", Message: "Internal server error"})
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Write(png)
}

func (s *Server) sendJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack implements http.Hijacker for WebSocket support
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := rw.ResponseWriter.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, http.ErrNotSupported
}
