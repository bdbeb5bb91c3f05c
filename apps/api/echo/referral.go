package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/mafunzo/mafunzo/core"
	"github.com/mafunzo/mafunzo/core/referral"
)

type referralApi struct {
	svc *referral.Service
}

func registerReferralAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *referral.Service) {
	api := referralApi{svc: svc}

	// un-authed endpoints
	g.GET("/leaderboard", api.leaderboard)

	// admin endpoints
	pg := g.Group("/policies", jwt, adminMiddleware())
	pg.POST("", api.createPolicy)
	pg.GET("", api.queryPolicies)
	pg.GET("/:id", api.retrievePolicy)
	pg.PUT("/:id", api.updatePolicy)
	pg.DELETE("/:id", api.destroyPolicy)

	g.GET("/trackings", api.queryTrackings, jwt, adminMiddleware())

	// referrer endpoints
	cg := g.Group("/codes", jwt)
	cg.POST("", api.getOrCreateCode)
	cg.GET("/:code/share-link", api.shareLink)
	cg.DELETE("/:code", api.deactivateCode, adminMiddleware())

	g.GET("/unlocked", api.unlocked, jwt)
}

// Handlers

func (api *referralApi) createPolicy(ctx echo.Context) error {
	var data referral.NewPolicy
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewPolicy")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	policy, err := api.svc.CreatePolicy(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating policy")
	}
	return ctx.JSON(http.StatusCreated, policy)
}

func (api *referralApi) queryPolicies(ctx echo.Context) error {
	policies, err := api.svc.QueryPolicies(ctx.Request().Context(), ctx.QueryParam("program"))
	if err != nil {
		return errors.Wrap(err, "querying policies")
	}
	if policies == nil {
		policies = []referral.Policy{}
	}
	return ctx.JSON(http.StatusOK, policies)
}

func (api *referralApi) retrievePolicy(ctx echo.Context) error {
	policy, err := api.svc.GetPolicy(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding policy")
	}
	return ctx.JSON(http.StatusOK, policy)
}

func (api *referralApi) updatePolicy(ctx echo.Context) error {
	var data referral.UpdatePolicy
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdatePolicy")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	policy, err := api.svc.UpdatePolicy(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating policy")
	}
	return ctx.JSON(http.StatusOK, policy)
}

func (api *referralApi) destroyPolicy(ctx echo.Context) error {
	if err := api.svc.DeletePolicy(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting policy")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *referralApi) queryTrackings(ctx echo.Context) error {
	filter := new(referral.TrackingFilter)
	if err := ctx.Bind(filter); err != nil {
		return errors.Wrap(err, "binding to TrackingFilter")
	}

	trackings, err := api.svc.FilterTrackings(ctx.Request().Context(), *filter)
	if err != nil {
		return errors.Wrap(err, "querying trackings")
	}
	if trackings == nil {
		trackings = []referral.Tracking{}
	}
	return ctx.JSON(http.StatusOK, trackings)
}

func (api *referralApi) getOrCreateCode(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	var data CodeRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to CodeRequest")
	}

	code, err := api.svc.GetOrCreateCode(ctx.Request().Context(), claims.Subject, data.ProgramID)
	if err != nil {
		return errors.Wrap(err, "issuing code")
	}
	return ctx.JSON(http.StatusOK, CodeResponse{Code: code, ShareLink: api.svc.ShareLink(code.Code)})
}

func (api *referralApi) shareLink(ctx echo.Context) error {
	code, err := api.svc.GetCode(ctx.Request().Context(), ctx.Param("code"))
	if err != nil {
		return errors.Wrap(err, "finding code")
	}
	if !code.IsActive {
		return referral.ErrCodeInactive
	}
	return ctx.JSON(http.StatusOK, ShareLinkResponse{ShareLink: api.svc.ShareLink(code.Code)})
}

func (api *referralApi) deactivateCode(ctx echo.Context) error {
	code, err := api.svc.DeactivateCode(ctx.Request().Context(), ctx.Param("code"))
	if err != nil {
		return errors.Wrap(err, "deactivating code")
	}
	return ctx.JSON(http.StatusOK, code)
}

func (api *referralApi) unlocked(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	unlocked, err := api.svc.IsUnlocked(ctx.Request().Context(), claims.Subject)
	if err != nil {
		return errors.Wrap(err, "checking content gate")
	}
	return ctx.JSON(http.StatusOK, UnlockedResponse{Unlocked: unlocked})
}

func (api *referralApi) leaderboard(ctx echo.Context) error {
	window := referral.TimeWindow(ctx.QueryParam("window"))
	if window == "" {
		window = referral.WindowAll
	}
	if !window.Valid() {
		return core.NewValidationError(nil, core.FieldError{Field: "window", Error: "must be one of: all, week, month, year"})
	}

	entries, err := api.svc.Leaderboard(ctx.Request().Context(), window)
	if err != nil {
		return errors.Wrap(err, "querying leaderboard")
	}
	if entries == nil {
		entries = []referral.LeaderboardEntry{}
	}
	return ctx.JSON(http.StatusOK, entries)
}

type (
	CodeRequest struct {
		ProgramID string `json:"program_id"` // empty: global code
	}

	CodeResponse struct {
		Code      referral.Code `json:"code"`
		ShareLink string        `json:"share_link"`
	}

	ShareLinkResponse struct {
		ShareLink string `json:"share_link"`
	}

	UnlockedResponse struct {
		Unlocked bool `json:"unlocked"`
	}
)
