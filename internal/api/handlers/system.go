package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/faceauth/internal/storage"
)

// Pinger is anything readiness can probe. The NATS producer satisfies
// it when events are enabled.
type Pinger interface {
	Ping(ctx context.Context) error
}

type SystemHandler struct {
	store  storage.Store
	blobs  storage.BlobStore
	extras map[string]Pinger
}

func NewSystemHandler(store storage.Store, blobs storage.BlobStore) *SystemHandler {
	return &SystemHandler{store: store, blobs: blobs, extras: map[string]Pinger{}}
}

// AddCheck registers an optional readiness dependency under name.
func (h *SystemHandler) AddCheck(name string, p Pinger) {
	h.extras[name] = p
}

func (h *SystemHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *SystemHandler) Readyz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]string{}
	healthy := true

	if err := h.store.Ping(ctx); err != nil {
		checks["store"] = err.Error()
		healthy = false
	} else {
		checks["store"] = "ok"
	}

	if err := h.blobs.Ping(ctx); err != nil {
		checks["blobs"] = err.Error()
		healthy = false
	} else {
		checks["blobs"] = "ok"
	}

	for name, p := range h.extras {
		if err := p.Ping(ctx); err != nil {
			checks[name] = err.Error()
			healthy = false
		} else {
			checks[name] = "ok"
		}
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"status": map[bool]string{true: "ready", false: "not ready"}[healthy],
		"checks": checks,
	})
}
