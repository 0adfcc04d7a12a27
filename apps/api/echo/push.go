package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/huddle/core"
	"github.com/trezcool/huddle/core/announcement"
	"github.com/trezcool/huddle/core/push"
	"github.com/trezcool/huddle/core/user"
)

type pushApi struct {
	svc           push.ServiceInterface
	announcements announcement.ServiceInterface
	auth          *Authenticator
	validate      *validator.Validate
}

func (s *Server) registerPushAPI(g *echo.Group, jwt echo.MiddlewareFunc) {
	api := pushApi{
		svc:           s.opts.PushSvc,
		announcements: s.opts.AnnouncementSvc,
		auth:          s.auth,
		validate:      s.opts.Validate,
	}

	sg := g.Group("/push/subscriptions", jwt)
	sg.GET("", api.querySubscriptions)
	sg.POST("", api.subscribe)
	sg.DELETE("", api.unsubscribe)

	ag := g.Group("/announcements", jwt)
	ag.GET("", api.queryAnnouncements)
	ag.POST("", api.createAnnouncement, staffMiddleware())
	ag.GET("/:id", api.retrieveAnnouncement)
	ag.DELETE("/:id", api.destroyAnnouncement, staffMiddleware())
}

// Subscriptions

func (api *pushApi) querySubscriptions(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	subs, err := api.svc.Subscriptions(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "querying subscriptions")
	}
	if subs == nil {
		subs = []push.Subscription{}
	}
	return ctx.JSON(http.StatusOK, subs)
}

func (api *pushApi) subscribe(ctx echo.Context) error {
	var data push.NewSubscription
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSubscription")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}

	sub, err := api.svc.Subscribe(ctx.Request().Context(), data, usr)
	if err != nil {
		return errors.Wrap(err, "subscribing")
	}
	return ctx.JSON(http.StatusCreated, sub)
}

func (api *pushApi) unsubscribe(ctx echo.Context) error {
	endpoint := core.CleanString(ctx.QueryParam("endpoint"))
	if endpoint == "" {
		return core.NewValidationError(nil, core.FieldError{Field: "endpoint", Error: "this field is required"})
	}
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.Unsubscribe(ctx.Request().Context(), endpoint, usr); err != nil {
		return errors.Wrap(err, "unsubscribing")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Announcements

func canViewAnnouncement(usr user.User, a announcement.Announcement) bool {
	return usr.IsAdmin() || usr.TeamID == "" || a.TeamID == "" || a.TeamID == usr.TeamID
}

func (api *pushApi) queryAnnouncements(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	var filter announcement.QueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []announcement.Announcement{})
	}
	filter.Clean()
	if !usr.IsAdmin() && usr.TeamID != "" {
		filter.TeamID = usr.TeamID
	}

	list, err := api.announcements.Query(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying announcements")
	}
	if list == nil {
		list = []announcement.Announcement{}
	}
	return ctx.JSON(http.StatusOK, list)
}

func (api *pushApi) createAnnouncement(ctx echo.Context) error {
	var data announcement.NewAnnouncement
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAnnouncement")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	data.TeamID = teamFor(usr, data.TeamID)

	pub, err := api.announcements.Create(ctx.Request().Context(), data, usr)
	if err != nil {
		return errors.Wrap(err, "creating announcement")
	}
	return ctx.JSON(http.StatusCreated, pub)
}

func (api *pushApi) retrieveAnnouncement(ctx echo.Context) error {
	a, err := api.loadAnnouncement(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api *pushApi) destroyAnnouncement(ctx echo.Context) error {
	a, err := api.loadAnnouncement(ctx)
	if err != nil {
		return err
	}
	if err := api.announcements.Delete(ctx.Request().Context(), a.ID); err != nil {
		return errors.Wrap(err, "deleting announcement")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *pushApi) loadAnnouncement(ctx echo.Context) (announcement.Announcement, error) {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return announcement.Announcement{}, err
	}
	a, err := api.announcements.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return announcement.Announcement{}, errors.Wrap(err, "getting announcement")
	}
	if !canViewAnnouncement(usr, a) {
		return announcement.Announcement{}, announcement.ErrNotFound
	}
	return a, nil
}
