// Package web serves a read-only JSON view of the live session: the device
// list, each device's rolling series, the last GPS fix and the map layers.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/luki/fieldview/internal/feed"
	"github.com/luki/fieldview/internal/geo"
	"github.com/luki/fieldview/internal/maps"
)

// PositionSource reports the last live GPS fix.
type PositionSource interface {
	Position() (geo.Position, bool)
}

type Server struct {
	router   *gin.Engine
	addr     string
	session  *feed.Session
	position PositionSource
	canvas   *maps.Canvas
	log      *slog.Logger
}

type deviceSummary struct {
	ID      string `json:"id"`
	Samples int    `json:"samples"`
}

type devicesResponse struct {
	Count    int             `json:"count"`
	Text     string          `json:"text"`
	Selected string          `json:"selected,omitempty"`
	Devices  []deviceSummary `json:"devices"`
}

// NewServer wires the routes. position and canvas may be nil when the view
// has no map.
func NewServer(addr string, session *feed.Session, position PositionSource, canvas *maps.Canvas, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		router:   router,
		addr:     addr,
		session:  session,
		position: position,
		canvas:   canvas,
		log:      log,
	}

	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "route not found",
			"available_endpoints": []string{
				"GET /api/devices",
				"GET /api/devices/:id",
				"GET /api/position",
				"GET /api/map",
			},
		})
	})

	api := router.Group("/api")
	api.GET("/devices", s.handleDevices)
	api.GET("/devices/:id", s.handleDevice)
	api.GET("/position", s.handlePosition)
	api.GET("/map", s.handleMap)
	return s
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) handleDevices(c *gin.Context) {
	reg := s.session.Registry
	resp := devicesResponse{Devices: []deviceSummary{}}
	for _, id := range reg.IDs() {
		n := 0
		if series, ok := reg.Find(id); ok {
			n = series.Len()
		}
		resp.Devices = append(resp.Devices, deviceSummary{ID: id, Samples: n})
	}
	resp.Count = len(resp.Devices)
	resp.Text = feed.CountText(resp.Count)
	resp.Selected, _ = s.session.Selected()
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleDevice(c *gin.Context) {
	id := c.Param("id")
	series, ok := s.session.Registry.Find(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown device", "id": id})
		return
	}
	c.JSON(http.StatusOK, series.Snapshot())
}

func (s *Server) handlePosition(c *gin.Context) {
	if s.position == nil {
		c.Status(http.StatusNoContent)
		return
	}
	pos, ok := s.position.Position()
	if !ok {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, pos)
}

func (s *Server) handleMap(c *gin.Context) {
	if s.canvas == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no map"})
		return
	}
	data, err := s.canvas.GeoJSON()
	if err != nil {
		s.log.Error("geojson export failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/geo+json", data)
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("status api listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}
