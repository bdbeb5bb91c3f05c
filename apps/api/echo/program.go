package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/mafunzo/mafunzo/core/program"
)

type programApi struct {
	svc *program.Service
}

func registerProgramAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *program.Service) {
	api := programApi{svc: svc}

	pg := g.Group("/programs")
	pg.GET("", api.query)
	pg.GET("/:id", api.retrieve)

	// admin endpoints
	pg.POST("", api.create, jwt, adminMiddleware())
	pg.DELETE("/:id", api.deactivate, jwt, adminMiddleware())
}

func (api *programApi) create(ctx echo.Context) error {
	var data program.NewProgram
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewProgram")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	p, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating program")
	}
	return ctx.JSON(http.StatusCreated, p)
}

func (api *programApi) query(ctx echo.Context) error {
	programs, err := api.svc.QueryAll(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying programs")
	}
	if programs == nil {
		programs = []program.Program{}
	}
	return ctx.JSON(http.StatusOK, programs)
}

func (api *programApi) retrieve(ctx echo.Context) error {
	p, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding program")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *programApi) deactivate(ctx echo.Context) error {
	p, err := api.svc.Deactivate(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "deactivating program")
	}
	return ctx.JSON(http.StatusOK, p)
}
