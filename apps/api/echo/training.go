package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/huddle/core/training"
	"github.com/trezcool/huddle/core/user"
)

type trainingApi struct {
	svc      training.ServiceInterface
	auth     *Authenticator
	validate *validator.Validate
}

func (s *Server) registerTrainingAPI(g *echo.Group, jwt echo.MiddlewareFunc) {
	api := trainingApi{
		svc:      s.opts.TrainingSvc,
		auth:     s.auth,
		validate: s.opts.Validate,
	}

	tg := g.Group("/training/tasks", jwt)
	tg.GET("", api.query)
	tg.POST("", api.create, staffMiddleware())
	tg.GET("/:id", api.retrieve)
	tg.PUT("/:id", api.update, staffMiddleware())
	tg.DELETE("/:id", api.destroy, staffMiddleware())
	tg.PUT("/:id/progress", api.updateProgress)
}

// canViewTask: staff see their team's tasks, players the tasks they are assigned to.
func canViewTask(usr user.User, t training.Task) bool {
	if usr.IsAdmin() {
		return true
	}
	if usr.IsStaff() {
		return usr.TeamID == "" || t.TeamID == "" || usr.TeamID == t.TeamID
	}
	return training.IsAssigned(usr, t)
}

func (api *trainingApi) loadTask(ctx echo.Context) (training.Task, user.User, error) {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return training.Task{}, usr, err
	}
	t, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return training.Task{}, usr, errors.Wrap(err, "getting task")
	}
	if !canViewTask(usr, t) {
		return training.Task{}, usr, training.ErrNotFound
	}
	return t, usr, nil
}

func (api *trainingApi) query(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	var filter training.QueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []training.Task{})
	}
	filter.Clean()
	if !usr.IsAdmin() && usr.TeamID != "" {
		filter.TeamID = usr.TeamID
	}
	if !usr.IsStaff() {
		filter.AssigneeID = usr.ID
	}

	tasks, err := api.svc.Query(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying tasks")
	}
	if tasks == nil {
		tasks = []training.Task{}
	}
	return ctx.JSON(http.StatusOK, tasks)
}

func (api *trainingApi) create(ctx echo.Context) error {
	var data training.NewTask
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewTask")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	data.TeamID = teamFor(usr, data.TeamID)

	t, err := api.svc.Create(ctx.Request().Context(), data, usr)
	if err != nil {
		return errors.Wrap(err, "creating task")
	}
	return ctx.JSON(http.StatusCreated, t)
}

func (api *trainingApi) retrieve(ctx echo.Context) error {
	t, _, err := api.loadTask(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api *trainingApi) update(ctx echo.Context) error {
	t, _, err := api.loadTask(ctx)
	if err != nil {
		return err
	}
	var data training.UpdateTask
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateTask")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	t, err = api.svc.Update(ctx.Request().Context(), t.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating task")
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api *trainingApi) destroy(ctx echo.Context) error {
	t, _, err := api.loadTask(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.Delete(ctx.Request().Context(), t.ID); err != nil {
		return errors.Wrap(err, "deleting task")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *trainingApi) updateProgress(ctx echo.Context) error {
	var data training.UpdateProgress
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateProgress")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}

	a, err := api.svc.UpdateProgress(ctx.Request().Context(), ctx.Param("id"), data, usr)
	if err != nil {
		return errors.Wrap(err, "updating progress")
	}
	return ctx.JSON(http.StatusOK, a)
}
