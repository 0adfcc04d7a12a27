package echoapi

import (
	"context"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/huddle/core"
	"github.com/trezcool/huddle/core/chat"
	"github.com/trezcool/huddle/core/user"
	"github.com/trezcool/huddle/services/realtime"
)

// ChatFeed serves the live feed of a room.
type ChatFeed interface {
	Serve(w http.ResponseWriter, r *http.Request, roomID string, usr user.User, post realtime.PostFunc) error
}

type chatApi struct {
	svc      chat.ServiceInterface
	feed     ChatFeed
	auth     *Authenticator
	validate *validator.Validate
	logger   core.Logger
}

func (s *Server) registerChatAPI(g *echo.Group, jwt echo.MiddlewareFunc) {
	api := chatApi{
		svc:      s.opts.ChatSvc,
		feed:     s.opts.ChatFeed,
		auth:     s.auth,
		validate: s.opts.Validate,
		logger:   s.opts.Logger,
	}

	rg := g.Group("/chat/rooms")
	rg.GET("", api.queryRooms, jwt)
	rg.POST("", api.createRoom, jwt, staffMiddleware())
	rg.GET("/:id", api.retrieveRoom, jwt)
	rg.DELETE("/:id", api.destroyRoom, jwt, staffMiddleware())
	rg.GET("/:id/messages", api.history, jwt)
	rg.POST("/:id/messages", api.post, jwt)

	// browsers cannot set headers on websocket requests
	rg.GET("/:id/ws", api.live, s.auth.middleware("query:token"))
}

func (api *chatApi) loadRoom(ctx echo.Context) (chat.Room, user.User, error) {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return chat.Room{}, usr, err
	}
	room, err := api.svc.GetRoom(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return chat.Room{}, usr, errors.Wrap(err, "getting room")
	}
	if !chat.CanAccess(usr, room) {
		return chat.Room{}, usr, chat.ErrNotFound
	}
	return room, usr, nil
}

func (api *chatApi) queryRooms(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	teamID := core.CleanString(ctx.QueryParam("team"))
	if !usr.IsAdmin() && usr.TeamID != "" {
		teamID = usr.TeamID
	}

	rooms, err := api.svc.QueryRooms(ctx.Request().Context(), teamID)
	if err != nil {
		return errors.Wrap(err, "querying rooms")
	}
	if rooms == nil {
		rooms = []chat.Room{}
	}
	return ctx.JSON(http.StatusOK, rooms)
}

func (api *chatApi) createRoom(ctx echo.Context) error {
	var data chat.NewRoom
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewRoom")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	data.TeamID = teamFor(usr, data.TeamID)

	room, err := api.svc.CreateRoom(ctx.Request().Context(), data, usr)
	if err != nil {
		return errors.Wrap(err, "creating room")
	}
	return ctx.JSON(http.StatusCreated, room)
}

func (api *chatApi) retrieveRoom(ctx echo.Context) error {
	room, _, err := api.loadRoom(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, room)
}

func (api *chatApi) destroyRoom(ctx echo.Context) error {
	room, _, err := api.loadRoom(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.DeleteRoom(ctx.Request().Context(), room.ID); err != nil {
		return errors.Wrap(err, "deleting room")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *chatApi) history(ctx echo.Context) error {
	room, _, err := api.loadRoom(ctx)
	if err != nil {
		return err
	}
	var filter chat.HistoryFilter
	if err := ctx.Bind(&filter); err != nil {
		return errors.Wrap(err, "binding to HistoryFilter")
	}
	if filter.Before, err = bindTimeParam(ctx, "before"); err != nil {
		return err
	}

	messages, err := api.svc.History(ctx.Request().Context(), room.ID, filter)
	if err != nil {
		return errors.Wrap(err, "querying messages")
	}
	if messages == nil {
		messages = []chat.Message{}
	}
	return ctx.JSON(http.StatusOK, messages)
}

func (api *chatApi) post(ctx echo.Context) error {
	room, usr, err := api.loadRoom(ctx)
	if err != nil {
		return err
	}
	var data chat.NewMessage
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewMessage")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	msg, err := api.svc.Post(ctx.Request().Context(), room.ID, data, usr)
	if err != nil {
		return errors.Wrap(err, "posting message")
	}
	return ctx.JSON(http.StatusCreated, msg)
}

func (api *chatApi) live(ctx echo.Context) error {
	room, usr, err := api.loadRoom(ctx)
	if err != nil {
		return err
	}
	if api.feed == nil {
		return errHttpNotFound
	}

	post := func(reqCtx context.Context, body string) error {
		data := chat.NewMessage{Body: body}
		if err := data.Validate(api.validate); err != nil {
			text := "this field cannot be blank"
			if vErrs, ok := err.(validator.ValidationErrors); ok && len(vErrs) > 0 && vErrs[0].Tag() == "max" {
				text = "the message is too long"
			}
			return core.NewValidationError(nil, core.FieldError{Field: "body", Error: text})
		}
		_, err := api.svc.Post(reqCtx, room.ID, data, usr)
		return err
	}
	if err := api.feed.Serve(ctx.Response(), ctx.Request(), room.ID, usr, post); err != nil {
		if ctx.Response().Committed {
			// the upgrader already answered
			api.logger.Warn("serving chat feed", err, usr)
			return nil
		}
		return err
	}
	return nil
}
