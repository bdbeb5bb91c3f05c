package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/mafunzo/mafunzo/core/enrollment"
)

type enrollmentApi struct {
	svc *enrollment.Service
}

func registerEnrollmentAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *enrollment.Service) {
	api := enrollmentApi{svc: svc}

	eg := g.Group("/enrollments")

	// un-authed endpoints: the participant form flow holds only the draft id
	dg := eg.Group("/drafts")
	dg.POST("", api.createDraft)
	dg.GET("/:id", api.retrieveDraft)
	dg.PUT("/:id", api.updateDraft)
	dg.POST("/:id/submit", api.submitDraft)

	// admin endpoints
	eg.GET("/:id", api.retrieve, jwt, adminMiddleware())
	eg.POST("/:id/approve", api.approve, jwt, adminMiddleware())
	eg.POST("/:id/reject", api.reject, jwt, adminMiddleware())
}

func (api *enrollmentApi) createDraft(ctx echo.Context) error {
	var data enrollment.NewDraft
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewDraft")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	draft, err := api.svc.StartDraft(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "starting draft")
	}
	return ctx.JSON(http.StatusCreated, draft)
}

func (api *enrollmentApi) retrieveDraft(ctx echo.Context) error {
	draft, err := api.svc.GetDraft(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding draft")
	}
	return ctx.JSON(http.StatusOK, draft)
}

func (api *enrollmentApi) updateDraft(ctx echo.Context) error {
	var data enrollment.UpdateDraft
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateDraft")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	draft, err := api.svc.UpdateDraft(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating draft")
	}
	return ctx.JSON(http.StatusOK, draft)
}

func (api *enrollmentApi) submitDraft(ctx echo.Context) error {
	enr, err := api.svc.Submit(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "submitting draft")
	}
	return ctx.JSON(http.StatusCreated, enr)
}

func (api *enrollmentApi) retrieve(ctx echo.Context) error {
	enr, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding enrollment")
	}
	return ctx.JSON(http.StatusOK, enr)
}

func (api *enrollmentApi) approve(ctx echo.Context) error {
	enr, err := api.svc.Approve(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "approving enrollment")
	}
	return ctx.JSON(http.StatusOK, enr)
}

func (api *enrollmentApi) reject(ctx echo.Context) error {
	enr, err := api.svc.Reject(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "rejecting enrollment")
	}
	return ctx.JSON(http.StatusOK, enr)
}
