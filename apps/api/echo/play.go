package echoapi

import (
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/huddle/core"
	"github.com/trezcool/huddle/core/play"
	"github.com/trezcool/huddle/core/user"
)

type playApi struct {
	svc      play.ServiceInterface
	auth     *Authenticator
	validate *validator.Validate
}

func (s *Server) registerPlayAPI(g *echo.Group, jwt echo.MiddlewareFunc) {
	api := playApi{
		svc:      s.opts.PlaySvc,
		auth:     s.auth,
		validate: s.opts.Validate,
	}

	bg := g.Group("/playbooks", jwt)
	bg.GET("", api.queryPlaybooks)
	bg.POST("", api.createPlaybook, staffMiddleware())
	bg.GET("/:id", api.retrievePlaybook)
	bg.PUT("/:id", api.updatePlaybook, staffMiddleware())
	bg.DELETE("/:id", api.destroyPlaybook, staffMiddleware())

	pg := g.Group("/plays", jwt)
	pg.GET("", api.query)
	pg.POST("", api.create, staffMiddleware())

	dg := pg.Group("/:id")
	dg.GET("", api.retrieve)
	dg.PUT("", api.update, staffMiddleware())
	dg.DELETE("", api.destroy, staffMiddleware())
	dg.POST("/duplicate", api.duplicate, staffMiddleware())

	dg.GET("/frames", api.listFrames)
	dg.POST("/frames", api.createFrame, staffMiddleware())
	dg.PUT("/frames", api.reorderFrames, staffMiddleware())
	dg.GET("/frames/:frameId", api.retrieveFrame)
	dg.PUT("/frames/:frameId", api.updateFrame, staffMiddleware())
	dg.DELETE("/frames/:frameId", api.destroyFrame, staffMiddleware())
}

// loadPlay fetches the play of the `:id` param.
// Plays the user cannot see are reported as not found; edit=true also requires edit rights.
func (api *playApi) loadPlay(ctx echo.Context, edit bool) (play.Play, user.User, error) {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return play.Play{}, usr, err
	}
	p, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return play.Play{}, usr, errors.Wrap(err, "getting play")
	}
	if !play.CanView(usr, p) {
		return play.Play{}, usr, play.ErrNotFound
	}
	if edit && !play.CanEdit(usr, p) {
		return play.Play{}, usr, errHttpForbidden
	}
	return p, usr, nil
}

func (api *playApi) loadPlaybook(ctx echo.Context, edit bool) (play.Playbook, error) {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return play.Playbook{}, err
	}
	pb, err := api.svc.GetPlaybook(ctx.Request().Context(), ctx.Param("id"), !edit)
	if err != nil {
		return play.Playbook{}, errors.Wrap(err, "getting playbook")
	}
	if !play.CanViewPlaybook(usr, pb) {
		return play.Playbook{}, play.ErrPlaybookNotFound
	}
	if edit && !play.CanEditPlaybook(usr, pb) {
		return play.Playbook{}, errHttpForbidden
	}
	if !edit {
		visible := make([]play.Play, 0, len(pb.Plays))
		for _, p := range pb.Plays {
			if play.CanView(usr, p) {
				visible = append(visible, p)
			}
		}
		pb.Plays = visible
	}
	return pb, nil
}

// teamFor returns the team a new object is created in: non-admins always create in their own team.
func teamFor(usr user.User, requested string) string {
	if usr.IsAdmin() || usr.TeamID == "" {
		return requested
	}
	return usr.TeamID
}

// Playbooks

func (api *playApi) queryPlaybooks(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	var filter play.PlaybookFilter
	if err := ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []play.Playbook{})
	}
	filter.Search = core.CleanString(filter.Search)
	play.ScopePlaybookFilter(usr, &filter)

	pbs, err := api.svc.QueryPlaybooks(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying playbooks")
	}
	if pbs == nil {
		pbs = []play.Playbook{}
	}
	return ctx.JSON(http.StatusOK, pbs)
}

func (api *playApi) createPlaybook(ctx echo.Context) error {
	var data play.NewPlaybook
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewPlaybook")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	data.TeamID = teamFor(usr, data.TeamID)

	pb, err := api.svc.CreatePlaybook(ctx.Request().Context(), data, usr)
	if err != nil {
		return errors.Wrap(err, "creating playbook")
	}
	return ctx.JSON(http.StatusCreated, pb)
}

func (api *playApi) retrievePlaybook(ctx echo.Context) error {
	pb, err := api.loadPlaybook(ctx, false)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, pb)
}

func (api *playApi) updatePlaybook(ctx echo.Context) error {
	pb, err := api.loadPlaybook(ctx, true)
	if err != nil {
		return err
	}
	var data play.UpdatePlaybook
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdatePlaybook")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	pb, err = api.svc.UpdatePlaybook(ctx.Request().Context(), pb.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating playbook")
	}
	return ctx.JSON(http.StatusOK, pb)
}

func (api *playApi) destroyPlaybook(ctx echo.Context) error {
	pb, err := api.loadPlaybook(ctx, true)
	if err != nil {
		return err
	}
	if err := api.svc.DeletePlaybook(ctx.Request().Context(), pb.ID); err != nil {
		return errors.Wrap(err, "deleting playbook")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Plays

func (api *playApi) query(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	filter := new(play.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []play.Play{})
	}
	filter.Clean()
	play.ScopeFilter(usr, filter)
	ordering := new(Ordering)
	ordering.Bind(ctx)

	plays, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying plays")
	}
	if plays == nil {
		plays = []play.Play{}
	}
	return ctx.JSON(http.StatusOK, plays)
}

func (api *playApi) create(ctx echo.Context) error {
	var data play.NewPlay
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewPlay")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	data.TeamID = teamFor(usr, data.TeamID)

	p, err := api.svc.Create(ctx.Request().Context(), data, usr)
	if err != nil {
		return errors.Wrap(err, "creating play")
	}
	return ctx.JSON(http.StatusCreated, p)
}

func (api *playApi) retrieve(ctx echo.Context) error {
	p, _, err := api.loadPlay(ctx, false)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *playApi) update(ctx echo.Context) error {
	p, _, err := api.loadPlay(ctx, true)
	if err != nil {
		return err
	}
	var data play.UpdatePlay
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdatePlay")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	p, err = api.svc.Update(ctx.Request().Context(), p.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating play")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *playApi) destroy(ctx echo.Context) error {
	p, _, err := api.loadPlay(ctx, true)
	if err != nil {
		return err
	}
	if err := api.svc.Delete(ctx.Request().Context(), p.ID); err != nil {
		return errors.Wrap(err, "deleting play")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *playApi) duplicate(ctx echo.Context) error {
	p, usr, err := api.loadPlay(ctx, false)
	if err != nil {
		return err
	}
	var data play.DuplicatePlay
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to DuplicatePlay")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	cp, err := api.svc.Duplicate(ctx.Request().Context(), p.ID, data, usr)
	if err != nil {
		return errors.Wrap(err, "duplicating play")
	}
	return ctx.JSON(http.StatusCreated, cp)
}

// Frames

func (api *playApi) listFrames(ctx echo.Context) error {
	p, _, err := api.loadPlay(ctx, false)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, p.Frames)
}

func (api *playApi) retrieveFrame(ctx echo.Context) error {
	p, _, err := api.loadPlay(ctx, false)
	if err != nil {
		return err
	}
	for _, f := range p.Frames {
		if f.ID == ctx.Param("frameId") {
			return ctx.JSON(http.StatusOK, f)
		}
	}
	return play.ErrFrameNotFound
}

func (api *playApi) createFrame(ctx echo.Context) error {
	p, _, err := api.loadPlay(ctx, true)
	if err != nil {
		return err
	}
	var data play.NewFrame
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewFrame")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	f, err := api.svc.CreateFrame(ctx.Request().Context(), p.ID, data)
	if err != nil {
		return errors.Wrap(err, "creating frame")
	}
	return ctx.JSON(http.StatusCreated, f)
}

func (api *playApi) updateFrame(ctx echo.Context) error {
	p, _, err := api.loadPlay(ctx, true)
	if err != nil {
		return err
	}
	var data play.UpdateFrame
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateFrame")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	f, err := api.svc.UpdateFrame(ctx.Request().Context(), p.ID, ctx.Param("frameId"), data)
	if err != nil {
		return errors.Wrap(err, "updating frame")
	}
	return ctx.JSON(http.StatusOK, f)
}

func (api *playApi) destroyFrame(ctx echo.Context) error {
	p, _, err := api.loadPlay(ctx, true)
	if err != nil {
		return err
	}
	var version *int64
	if v := ctx.QueryParam("version"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return core.NewValidationError(nil, core.FieldError{Field: "version", Error: "must be an integer"})
		}
		version = &n
	}

	frames, err := api.svc.DeleteFrame(ctx.Request().Context(), p.ID, ctx.Param("frameId"), version)
	if err != nil {
		return errors.Wrap(err, "deleting frame")
	}
	return ctx.JSON(http.StatusOK, frames)
}

func (api *playApi) reorderFrames(ctx echo.Context) error {
	p, _, err := api.loadPlay(ctx, true)
	if err != nil {
		return err
	}
	var data play.ReorderFrames
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ReorderFrames")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	frames, err := api.svc.ReorderFrames(ctx.Request().Context(), p.ID, data)
	if err != nil {
		return errors.Wrap(err, "reordering frames")
	}
	return ctx.JSON(http.StatusOK, frames)
}
