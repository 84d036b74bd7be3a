package handler

import (
	"net/http"
	"runtime"
	"runtime/debug"

	"github.com/deppfellow/erp-crud/internal/config"
	"github.com/deppfellow/erp-crud/internal/server"
	"github.com/labstack/echo/v4"
)

// Version is set at build time with
// -ldflags "-X github.com/deppfellow/erp-crud/internal/handler.Version=v1.2.3".
var Version = "dev"

type VersionHandler struct {
	Handler
}

func NewVersionHandler(s *server.Server) *VersionHandler {
	return &VersionHandler{
		Handler: NewHandler(s),
	}
}

type VersionResponse struct {
	Service   string `json:"service"`
	Version   string `json:"version"`
	Revision  string `json:"revision,omitempty"`
	BuildTime string `json:"build_time,omitempty"`
	GoVersion string `json:"go_version"`
	Driver    string `json:"driver"`
}

func (h *VersionHandler) GetVersion(c echo.Context) error {
	resp := VersionResponse{
		Service:   config.ServiceName,
		Version:   Version,
		GoVersion: runtime.Version(),
		Driver:    h.server.DB.Driver,
	}

	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				resp.Revision = s.Value
			case "vcs.time":
				resp.BuildTime = s.Value
			}
		}
	}

	return c.JSON(http.StatusOK, resp)
}
