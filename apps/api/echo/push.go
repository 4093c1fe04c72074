package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/loopverse/campus/core"
	"github.com/loopverse/campus/core/session"
	"github.com/loopverse/campus/core/user"
	pushsvc "github.com/loopverse/campus/services/push"
)

type pushApi struct {
	svc      *user.Service
	hub      *pushsvc.Hub
	logger   core.Logger
	validate *validator.Validate
}

func registerPushAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps, _ *jwtAuth) {
	api := pushApi{svc: deps.UserSvc, hub: deps.Hub, logger: deps.Logger, validate: deps.Validate}

	// devices authenticate the websocket with their push token
	g.GET("/ws", api.connect)

	g.POST("/register", api.register, jwt)
	g.POST("/send", api.send, jwt, roleMiddleware(user.RoleAdmin, user.RoleTeacher))
}

// Handlers

func (api *pushApi) register(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	tok, err := api.svc.RegisterPushToken(ctx.Request().Context(), claims.Subject)
	if err != nil {
		return errors.Wrap(err, "registering push token")
	}
	return ctx.JSON(http.StatusCreated, PushTokenResponse{Token: tok.Token})
}

func (api *pushApi) connect(ctx echo.Context) error {
	tok, err := api.svc.ResolvePushToken(ctx.Request().Context(), ctx.QueryParam("token"))
	if err != nil {
		if errors.Is(err, user.ErrPushTokenNotFound) {
			return errUnauthorized
		}
		return errors.Wrap(err, "resolving push token")
	}
	if err = api.hub.ServeWS(ctx.Response(), ctx.Request(), tok.UserID); err != nil {
		if errors.Is(err, pushsvc.ErrHubClosed) {
			return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
		}
		// the upgrader already answered the client
		api.logger.Warn("upgrading push connection", err, map[string]interface{}{"user_id": tok.UserID})
	}
	return nil
}

func (api *pushApi) send(ctx echo.Context) error {
	var data SendPushRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SendPushRequest")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	reqCtx := ctx.Request().Context()
	ids := append([]string(nil), data.UserIDs...)
	if len(data.Roles) > 0 {
		byRole, err := api.svc.UsersWithRoles(reqCtx, data.Roles...)
		if err != nil {
			return errors.Wrap(err, "finding users by role")
		}
		ids = append(ids, byRole...)
	}

	n, err := api.hub.Send(reqCtx, dedupe(ids), session.Notification{
		Title: data.Title,
		Body:  data.Body,
		Data:  data.Data,
	})
	if err != nil {
		if errors.Is(err, pushsvc.ErrHubClosed) {
			return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
		}
		return errors.Wrap(err, "sending notification")
	}
	return ctx.JSON(http.StatusOK, SendPushResponse{Delivered: n})
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if id != "" && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

type (
	PushTokenResponse struct {
		Token string `json:"token"`
	}

	SendPushRequest struct {
		UserIDs []string          `json:"user_ids" validate:"required_without=Roles"`
		Roles   []user.Role       `json:"roles" validate:"omitempty,dive,role"`
		Title   string            `json:"title" validate:"required,notblank"`
		Body    string            `json:"body"`
		Data    map[string]string `json:"data"`
	}

	SendPushResponse struct {
		Delivered int `json:"delivered"`
	}
)
