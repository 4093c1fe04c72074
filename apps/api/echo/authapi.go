package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/loopverse/campus/core"
	"github.com/loopverse/campus/core/user"
)

const grantPassword = "password"

type authApi struct {
	conf       *core.Config
	svc        *user.Service
	auth       *jwtAuth
	logger     core.Logger
	validate   *validator.Validate
	translator ut.Translator
}

func registerAuthAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps, auth *jwtAuth) {
	api := authApi{
		conf:       deps.Conf,
		svc:        deps.UserSvc,
		auth:       auth,
		logger:     deps.Logger,
		validate:   deps.Validate,
		translator: deps.Translator,
	}

	// un-authed endpoints
	// TODO: rate limit `/token`, `/recover` & `/recover/confirm`
	g.POST("/signup", api.signUp)
	g.POST("/token", api.token)
	g.POST("/recover", api.recover)
	g.POST("/recover/confirm", api.confirmRecover)
	g.GET("/roles", api.roles)

	// authed endpoints
	g.POST("/token/refresh", api.refreshToken, jwt)
	g.POST("/logout", api.logout, jwt)
	g.GET("/user", api.currentUser, jwt)
}

// Handlers

func (api *authApi) signUp(ctx echo.Context) error {
	var data CredentialsRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to CredentialsRequest")
	}

	nu := user.NewUser{
		Email:    data.Email,
		Password: data.Password,
		Name:     data.Data["name"],
		Role:     user.Role(data.Data["role"]),
	}
	if err := nu.Validate(api.validate, api.svc); err != nil {
		return err
	}
	if nu.Role == user.RoleAdmin && !api.conf.Server.AdminSignUp {
		return core.NewValidationError(user.ErrAdminSignUp, core.FieldError{Field: "role", Error: user.ErrAdminSignUp.Error()})
	}

	usr, err := api.svc.SignUp(ctx.Request().Context(), nu)
	if err != nil {
		if errors.Is(err, user.ErrEmailExists) {
			return core.NewValidationError(err, core.FieldError{Field: "email", Error: err.Error()})
		}
		return errors.Wrap(err, "signing up")
	}

	rs, err := api.auth.newSession(usr)
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	return ctx.JSON(http.StatusCreated, rs)
}

func (api *authApi) token(ctx echo.Context) error {
	if ctx.QueryParam("grant_type") != grantPassword {
		return errUnsupportedGrant
	}

	var data CredentialsRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to CredentialsRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := api.svc.Authenticate(ctx.Request().Context(), data.Email, data.Password)
	switch {
	case errors.Is(err, user.ErrInvalidCredentials):
		return errAuthenticationFailed
	case errors.Is(err, user.ErrAccountDeactivated):
		return errAccountDeactivated
	case err != nil:
		return errors.Wrap(err, "authenticating")
	}

	rs, err := api.auth.newSession(usr)
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	return ctx.JSON(http.StatusOK, rs)
}

func (api *authApi) refreshToken(ctx echo.Context) error {
	rs, err := api.auth.refresh(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "refreshing token")
	}
	return ctx.JSON(http.StatusOK, rs)
}

// logout has nothing to revoke: tokens are stateless and clients drop theirs.
func (api *authApi) logout(ctx echo.Context) error {
	return ctx.NoContent(http.StatusNoContent)
}

func (api *authApi) currentUser(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	return ctx.JSON(http.StatusOK, remoteUser(usr))
}

func (api *authApi) recover(ctx echo.Context) error {
	var data PasswordResetRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PasswordResetRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	err := api.svc.RequestPasswordReset(ctx.Request().Context(), data.Email)
	if err != nil && !errors.Is(err, user.ErrNotFound) && !errors.Is(err, user.ErrAccountDeactivated) {
		// do not return errors to attackers
		api.logger.Error("requesting password reset", err)
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{
		Success: "If the email address supplied is associated with an active account on this system, " +
			"an email will arrive in your inbox shortly with instructions to reset your password.",
	})
}

func (api *authApi) confirmRecover(ctx echo.Context) error {
	var data user.ResetUserPassword
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ResetUserPassword")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if err := api.svc.ConfirmPasswordReset(ctx.Request().Context(), data); err != nil {
		return errors.Wrap(err, "resetting password")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Password has been reset with the new password."})
}

func (api *authApi) roles(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, user.Roles)
}

type (
	CredentialsRequest struct {
		Email    string            `json:"email" validate:"required,email"`
		Password string            `json:"password" validate:"required"`
		Data     map[string]string `json:"data"`
	}

	PasswordResetRequest struct {
		Email string `json:"email" validate:"required,email"`
	}

	SuccessResponse struct {
		Success string `json:"success"`
	}
)

func (cr *CredentialsRequest) Validate(validate *validator.Validate) error {
	cr.Email = core.CleanString(cr.Email, true /* lower */)
	return validate.Struct(cr)
}

func (pr *PasswordResetRequest) Validate(validate *validator.Validate) error {
	pr.Email = core.CleanString(pr.Email, true /* lower */)
	return validate.Struct(pr)
}
