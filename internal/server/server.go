// Package server exposes a connected device over HTTP and streams download
// progress to WebSocket clients.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/shaunagostinho/sq100/internal/config"
	"github.com/shaunagostinho/sq100/internal/device"
	"github.com/shaunagostinho/sq100/internal/export"
	"github.com/shaunagostinho/sq100/internal/store"
	"github.com/shaunagostinho/sq100/internal/track"
)

// Server serves the track API and broadcasts progress to WebSocket clients.
type Server struct {
	cfg     *config.Config
	archive *store.Store // nil when archiving is off
	webFS   fs.FS
	log     zerolog.Logger
	now     func() time.Time

	// devMu serializes device operations; requests that find it held get 409.
	devMu     sync.Mutex
	sessionMu sync.RWMutex
	session   device.Session

	clients   map[*wsClient]struct{}
	clientsMu sync.RWMutex
	upgrader  websocket.Upgrader
	validate  *validator.Validate
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Frame is the JSON structure sent to all WebSocket clients.
type Frame struct {
	Event    string           `json:"event"` // "hello", "progress", "complete", "error", "device", "config"
	Progress *device.Progress `json:"progress,omitempty"`
	Device   *DeviceStatus    `json:"device,omitempty"`
	Error    string           `json:"error,omitempty"`
	Stamp    int64            `json:"stamp"` // Unix ms
}

// DeviceStatus reports whether a device is attached.
type DeviceStatus struct {
	Connected bool   `json:"connected"`
	Identity  string `json:"identity,omitempty"`
}

// DownloadRequest is the body of POST /api/tracks/download.
type DownloadRequest struct {
	IDs []uint16 `json:"ids" validate:"required,min=1,max=32766"`
}

// New creates a Server. archive may be nil.
func New(cfg *config.Config, archive *store.Store, webFS fs.FS, log zerolog.Logger) *Server {
	return &Server{
		cfg:     cfg,
		archive: archive,
		webFS:   webFS,
		log:     log.With().Str("component", "server").Logger(),
		now:     time.Now,
		clients: make(map[*wsClient]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// SetSession attaches (or with nil, detaches) the device.
func (s *Server) SetSession(sess device.Session) {
	s.sessionMu.Lock()
	s.session = sess
	s.sessionMu.Unlock()
	s.broadcast(Frame{Event: "device", Device: s.deviceStatus()})
}

// Progress broadcasts a download progress update. Pass it as
// device.Options.Progress.
func (s *Server) Progress(p device.Progress) {
	s.broadcast(Frame{Event: "progress", Progress: &p})
}

func (s *Server) currentSession() device.Session {
	s.sessionMu.RLock()
	defer s.sessionMu.RUnlock()
	return s.session
}

func (s *Server) deviceStatus() *DeviceStatus {
	sess := s.currentSession()
	if sess == nil {
		return &DeviceStatus{}
	}
	return &DeviceStatus{Connected: true, Identity: sess.Identity().String()}
}

// Handler builds the HTTP routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.NoCache)
	r.Use(s.requestLogger)

	r.Get("/ws", s.handleWS)
	r.Route("/api", func(r chi.Router) {
		r.Get("/device", s.handleDevice)
		r.Get("/tracks", s.handleListTracks)
		r.Post("/tracks/download", s.handleDownload)
		r.Get("/archive", s.handleArchiveList)
		r.Get("/archive/{key}", s.handleArchiveGet)
		r.Delete("/archive/{key}", s.handleArchiveDelete)
		r.Get("/archive/{key}/gpx", s.handleArchiveGPX)
		r.Get("/config", s.handleConfigGet)
		r.Post("/config", s.handleConfigPost)
	})
	if s.webFS != nil {
		r.Handle("/*", http.FileServer(http.FS(s.webFS)))
	}
	return r
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Snapshot().Server.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Info().Str("addr", srv.Addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.closeClients()
		return srv.Shutdown(shutCtx)
	})
	return g.Wait()
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Msg("request")
	})
}

// withDevice runs fn holding the device lock, answering 503 without a device
// and 409 while another operation is running.
func (s *Server) withDevice(w http.ResponseWriter, fn func(device.Session)) {
	sess := s.currentSession()
	if sess == nil {
		writeError(w, http.StatusServiceUnavailable, "device not connected")
		return
	}
	if !s.devMu.TryLock() {
		writeError(w, http.StatusConflict, "device busy")
		return
	}
	defer s.devMu.Unlock()
	fn(sess)
}

func (s *Server) handleDevice(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deviceStatus())
}

func (s *Server) handleListTracks(w http.ResponseWriter, r *http.Request) {
	s.withDevice(w, func(sess device.Session) {
		tracks, err := sess.ListTracks(r.Context())
		if err != nil {
			s.log.Error().Err(err).Msg("list tracks failed")
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		headers := make([]track.Header, len(tracks))
		for i := range tracks {
			headers[i] = tracks[i].Header
		}
		writeJSON(w, http.StatusOK, headers)
	})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	var req DownloadRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.validate.StructCtx(r.Context(), &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.withDevice(w, func(sess device.Session) {
		tracks, err := sess.DownloadTracks(r.Context(), req.IDs)
		if err != nil {
			s.log.Error().Err(err).Msg("download failed")
			s.broadcast(Frame{Event: "error", Error: err.Error()})
			status := http.StatusBadGateway
			if errors.Is(err, device.ErrUnknownTrackID) {
				status = http.StatusNotFound
			}
			writeError(w, status, err.Error())
			return
		}
		if s.archive != nil {
			if _, err := s.archive.Put(tracks...); err != nil {
				s.log.Error().Err(err).Msg("archive failed")
			}
		}
		s.broadcast(Frame{Event: "complete"})
		writeJSON(w, http.StatusOK, tracks)
	})
}

func (s *Server) requireArchive(w http.ResponseWriter) bool {
	if s.archive == nil {
		writeError(w, http.StatusNotFound, "archive disabled")
		return false
	}
	return true
}

func (s *Server) handleArchiveList(w http.ResponseWriter, r *http.Request) {
	if !s.requireArchive(w) {
		return
	}
	entries, err := s.archive.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) archived(w http.ResponseWriter, r *http.Request) (track.Track, bool) {
	if !s.requireArchive(w) {
		return track.Track{}, false
	}
	t, err := s.archive.Get(chi.URLParam(r, "key"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return track.Track{}, false
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return track.Track{}, false
	}
	return t, true
}

func (s *Server) handleArchiveGet(w http.ResponseWriter, r *http.Request) {
	if t, ok := s.archived(w, r); ok {
		writeJSON(w, http.StatusOK, t)
	}
}

func (s *Server) handleArchiveDelete(w http.ResponseWriter, r *http.Request) {
	if !s.requireArchive(w) {
		return
	}
	key := chi.URLParam(r, "key")
	err := s.archive.Delete(key)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.log.Info().Str("key", key).Msg("track removed from archive")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleArchiveGPX(w http.ResponseWriter, r *http.Request) {
	t, ok := s.archived(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/gpx+xml")
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.FileName(&t, export.FormatGPX)+`"`)
	if err := export.WriteGPX(w, []track.Track{t}, s.now()); err != nil {
		s.log.Error().Err(err).Msg("gpx export failed")
	}
}

func (s *Server) handleConfigGet(w http.ResponseWriter, r *http.Request) {
	data, err := s.cfg.ToJSON()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func (s *Server) handleConfigPost(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad request")
		return
	}
	if err := s.cfg.UpdateFromJSON(body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.cfg.Save(); err != nil {
		s.log.Warn().Err(err).Msg("config save failed")
	}
	s.broadcast(Frame{Event: "config"})
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan []byte, 64),
	}

	// hello goes first, before any broadcast can reach the client
	if data, err := json.Marshal(Frame{Event: "hello", Device: s.deviceStatus(), Stamp: s.now().UnixMilli()}); err == nil {
		client.send <- data
	}

	s.clientsMu.Lock()
	s.clients[client] = struct{}{}
	n := len(s.clients)
	s.clientsMu.Unlock()
	s.log.Debug().Int("clients", n).Msg("websocket client connected")

	// Writer
	go func() {
		defer conn.Close()
		for msg := range client.send {
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				break
			}
		}
	}()

	// Reader, only to notice the close
	go func() {
		defer s.dropClient(client)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) dropClient(c *wsClient) {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	if _, ok := s.clients[c]; !ok {
		return
	}
	delete(s.clients, c)
	close(c.send)
	s.log.Debug().Int("clients", len(s.clients)).Msg("websocket client disconnected")
}

func (s *Server) closeClients() {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	for c := range s.clients {
		delete(s.clients, c)
		close(c.send)
	}
}

func (s *Server) broadcast(frame Frame) {
	frame.Stamp = s.now().UnixMilli()
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}

	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	for client := range s.clients {
		select {
		case client.send <- data:
		default:
			// Client too slow, skip
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
