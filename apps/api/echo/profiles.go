package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/loopverse/campus/core"
	"github.com/loopverse/campus/core/user"
)

type profileApi struct {
	svc      *user.Service
	validate *validator.Validate
}

func registerProfileAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps, _ *jwtAuth) {
	api := profileApi{svc: deps.UserSvc, validate: deps.Validate}

	pg := g.Group("/profiles", jwt)
	pg.GET("", api.query, adminMiddleware())
	pg.POST("", api.create)
	pg.GET("/:id", api.retrieve, selfOrAdminMiddleware())
}

// Handlers

func (api *profileApi) create(ctx echo.Context) error {
	var data user.NewProfile
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewProfile")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	// only admins may create profiles for someone else
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	if data.ID != claims.Subject && !claims.IsAdmin {
		return errHttpForbidden
	}

	prof, err := api.svc.CreateProfile(ctx.Request().Context(), data)
	if err != nil {
		if errors.Is(err, user.ErrProfileExists) {
			return core.NewValidationError(err, core.FieldError{Field: "id", Error: err.Error()})
		}
		return errors.Wrap(err, "creating profile")
	}
	return ctx.JSON(http.StatusCreated, prof)
}

func (api *profileApi) retrieve(ctx echo.Context) error {
	prof, err := api.svc.GetProfile(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		if errors.Is(err, user.ErrProfileNotFound) {
			return errHttpNotFound
		}
		return errors.Wrap(err, "finding profile by ID")
	}
	return ctx.JSON(http.StatusOK, prof)
}

func (api *profileApi) query(ctx echo.Context) error {
	filter := new(user.ProfileFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []user.Profile{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	profs, err := api.svc.QueryProfiles(ctx.Request().Context(), *filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying profiles")
	}
	if profs == nil {
		profs = []user.Profile{}
	}
	return ctx.JSON(http.StatusOK, profs)
}

// selfOrAdminMiddleware hides other users' records from non-admins.
func selfOrAdminMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if ctx.Param("id") == claims.Subject || claims.IsAdmin {
				return next(ctx)
			}
			return errHttpNotFound
		}
	}
}
