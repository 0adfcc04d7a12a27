package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

func (s *Server) registerAdminAPI(g *echo.Group, jwt echo.MiddlewareFunc) {
	ag := g.Group("/admin", jwt, adminMiddleware())
	ag.GET("/diagnostics", s.diagnostics)
}

func (s *Server) diagnostics(ctx echo.Context) error {
	if s.opts.Diag == nil {
		return errHttpNotFound
	}
	return ctx.JSON(http.StatusOK, s.opts.Diag.Report(ctx.Request().Context()))
}
