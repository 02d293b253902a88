package health

import (
	"net/http"

	"miniapp-rewards/pkg/config"
	"miniapp-rewards/pkg/kvstore"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

var Module = fx.Module("health", fx.Provide(ProvideHealth))

const (
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"
)

type Dependency struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type Health struct {
	Status  string       `json:"status"`
	Message string       `json:"message"`
	Deps    []Dependency `json:"deps"`
}

type HealthService interface {
	Liveness(c *gin.Context)
	Readiness(c *gin.Context)
}

type health struct {
	driver string
	store  kvstore.Store
}

type HealthParams struct {
	fx.In
	Config *config.Config
	Store  kvstore.Store
}

func ProvideHealth(p HealthParams) HealthService {
	return &health{driver: p.Config.Storage.Driver, store: p.Store}
}

func (h *health) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, &Health{
		Status:  statusHealthy,
		Message: "OK",
	})
}

// Readiness pings the state store. The service cannot serve a single claim
// without it, so a failed ping fails the whole probe.
func (h *health) Readiness(c *gin.Context) {
	this := &Health{
		Status:  statusHealthy,
		Message: "OK",
	}

	name := h.driver
	if name == "" {
		name = "store"
	}
	dep := Dependency{Name: name, Status: statusHealthy, Message: "OK"}
	if err := h.store.Ping(c.Request.Context()); err != nil {
		dep.Status = statusUnhealthy
		dep.Message = err.Error()
		this.Status = statusUnhealthy
		this.Message = "dependency unavailable"
	}
	this.Deps = []Dependency{dep}

	code := http.StatusOK
	if this.Status != statusHealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, this)
}
