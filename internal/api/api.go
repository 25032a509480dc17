// Package api serves stored prices over a read-only HTTP API.
package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rewired-gh/fleaprice/internal/history"
	"github.com/rewired-gh/fleaprice/internal/logger"
	"github.com/rewired-gh/fleaprice/internal/storage"
)

// Handler serves read-only views of the store.
type Handler struct {
	store storage.Store
	ring  history.Ring
}

// NewRouter wires all routes. metrics may be nil to leave /metrics out.
func NewRouter(store storage.Store, periods int, metrics http.Handler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	h := &Handler{store: store, ring: history.NewRing(periods)}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if metrics != nil {
		r.GET("/metrics", gin.WrapH(metrics))
	}

	v1 := r.Group("/api/v1")
	{
		v1.GET("/averages", h.ListAverages)
		v1.GET("/averages/:id", h.GetAverage)
		v1.GET("/snapshots/:slot", h.GetSnapshot)
		v1.GET("/index", h.GetIndex)
	}
	return r
}

// NewServer wraps the router in an http.Server with sane timeouts.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// ListAverages returns every stored history average.
func (h *Handler) ListAverages(c *gin.Context) {
	avg, err := h.store.ReadAverages(c.Request.Context())
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"averages": avg, "count": len(avg)})
}

// GetAverage returns the history average of one item.
func (h *Handler) GetAverage(c *gin.Context) {
	id := c.Param("id")
	avg, err := h.store.ReadAverages(c.Request.Context())
	if err != nil {
		internalError(c, err)
		return
	}
	price, ok := avg[id]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "item not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "price": price})
}

// GetSnapshot returns the snapshot stored in one ring slot.
func (h *Handler) GetSnapshot(c *gin.Context) {
	slot, err := strconv.Atoi(c.Param("slot"))
	if err != nil || !h.ring.Contains(slot) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid slot"})
		return
	}
	snap, err := h.store.ReadSnapshot(c.Request.Context(), slot)
	if errors.Is(err, storage.ErrSlotNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "slot not written yet"})
		return
	}
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// GetIndex returns the slot the next run will write.
func (h *Handler) GetIndex(c *gin.Context) {
	idx, err := h.store.ReadIndex(c.Request.Context())
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"index": idx, "periods": h.ring.Periods})
}

func internalError(c *gin.Context, err error) {
	logger.Error("API %s %s failed: %v", c.Request.Method, c.Request.URL.Path, err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("API %s %s -> %d in %v", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}
