package api

import (
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/Transit/internal/core"
	"github.com/GriffinCanCode/Transit/internal/monitoring"
	"github.com/GriffinCanCode/Transit/internal/registry"
)

// Handlers contains all HTTP handlers.
type Handlers struct {
	router   *core.Router
	registry *registry.Manager
}

// NewHandlers creates a new handler set.
func NewHandlers(router *core.Router, reg *registry.Manager) *Handlers {
	return &Handlers{router: router, registry: reg}
}

// Root handles health check.
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "transit",
	})
}

// Health reports liveness plus headline counters.
func (h *Handlers) Health(c *gin.Context) {
	st := h.router.Stats()
	snap := h.router.Metrics().GetSnapshot()
	c.JSON(http.StatusOK, gin.H{
		"status":         "healthy",
		"processes":      st.Processes,
		"nodes":          st.Nodes,
		"uptime_seconds": snap.UptimeSeconds,
	})
}

// Services lists the published service names.
func (h *Handlers) Services(c *gin.Context) {
	names := h.registry.Names()
	c.JSON(http.StatusOK, gin.H{
		"services": names,
		"count":    len(names),
	})
}

// Stats returns the per-process router snapshot.
func (h *Handlers) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.router.Stats())
}

// dump is the full debug snapshot in one document.
type dump struct {
	Stats    core.Stats          `json:"stats"`
	Services []string            `json:"services"`
	Counters monitoring.Snapshot `json:"counters"`
}

// Dump renders the complete router state with sonic, which handles the
// large per-process arrays faster than the default encoder.
func (h *Handlers) Dump(c *gin.Context) {
	doc := dump{
		Stats:    h.router.Stats(),
		Services: h.registry.Names(),
		Counters: h.router.Metrics().GetSnapshot(),
	}
	buf, err := sonic.Marshal(doc)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", buf)
}
