package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/huddle/core/video"
)

type videoApi struct {
	svc      video.ServiceInterface
	auth     *Authenticator
	validate *validator.Validate
}

func (s *Server) registerVideoAPI(g *echo.Group, jwt echo.MiddlewareFunc) {
	api := videoApi{
		svc:      s.opts.VideoSvc,
		auth:     s.auth,
		validate: s.opts.Validate,
	}

	vg := g.Group("/videos", jwt)
	vg.GET("", api.query)
	vg.POST("/import", api.importVideo, staffMiddleware())
	vg.POST("/sync", api.sync, staffMiddleware())
	vg.GET("/:id", api.retrieve)
	vg.DELETE("/:id", api.destroy, staffMiddleware())

	vg.GET("/:id/markers", api.listMarkers)
	vg.POST("/:id/markers", api.createMarker, staffMiddleware())
	vg.PUT("/:id/markers/:markerId", api.updateMarker, staffMiddleware())
	vg.DELETE("/:id/markers/:markerId", api.destroyMarker, staffMiddleware())
}

func (api *videoApi) query(ctx echo.Context) error {
	var filter video.QueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []video.Video{})
	}
	filter.Clean()

	videos, err := api.svc.Query(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying videos")
	}
	if videos == nil {
		videos = []video.Video{}
	}
	return ctx.JSON(http.StatusOK, videos)
}

func (api *videoApi) retrieve(ctx echo.Context) error {
	v, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting video")
	}
	return ctx.JSON(http.StatusOK, v)
}

func (api *videoApi) importVideo(ctx echo.Context) error {
	var data video.ImportVideo
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ImportVideo")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	v, err := api.svc.Import(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "importing video")
	}
	return ctx.JSON(http.StatusOK, v)
}

func (api *videoApi) sync(ctx echo.Context) error {
	var data video.SyncChannel
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SyncChannel")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	res, err := api.svc.Sync(ctx.Request().Context(), data.ChannelID)
	if err != nil {
		return errors.Wrap(err, "syncing channel")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *videoApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting video")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Markers

func (api *videoApi) listMarkers(ctx echo.Context) error {
	markers, err := api.svc.ListMarkers(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "listing markers")
	}
	if markers == nil {
		markers = []video.Marker{}
	}
	return ctx.JSON(http.StatusOK, markers)
}

func (api *videoApi) createMarker(ctx echo.Context) error {
	var data video.NewMarker
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewMarker")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}

	m, err := api.svc.CreateMarker(ctx.Request().Context(), ctx.Param("id"), data, usr)
	if err != nil {
		return errors.Wrap(err, "creating marker")
	}
	return ctx.JSON(http.StatusCreated, m)
}

func (api *videoApi) updateMarker(ctx echo.Context) error {
	var data video.UpdateMarker
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateMarker")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	m, err := api.svc.UpdateMarker(ctx.Request().Context(), ctx.Param("id"), ctx.Param("markerId"), data)
	if err != nil {
		return errors.Wrap(err, "updating marker")
	}
	return ctx.JSON(http.StatusOK, m)
}

func (api *videoApi) destroyMarker(ctx echo.Context) error {
	if err := api.svc.DeleteMarker(ctx.Request().Context(), ctx.Param("id"), ctx.Param("markerId")); err != nil {
		return errors.Wrap(err, "deleting marker")
	}
	return ctx.NoContent(http.StatusNoContent)
}
