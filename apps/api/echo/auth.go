package echoapi

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/loopverse/campus/core"
	"github.com/loopverse/campus/core/session"
	"github.com/loopverse/campus/core/user"
)

const (
	contextTokenKey = "userToken"
	contextUserKey  = "user"
	tokenType       = "bearer"
)

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	OrigIssuedAt int64     `json:"oriat,omitempty"`
	Email        string    `json:"email,omitempty"`
	Name         string    `json:"name,omitempty"`
	Role         user.Role `json:"role,omitempty"`
	IsStudent    bool      `json:"is_student,omitempty"` // -> STUDENT DASHBOARD
	IsTeacher    bool      `json:"is_teacher,omitempty"` // -> TEACHER DASHBOARD
	IsAdmin      bool      `json:"is_admin,omitempty"`   // -> ADMIN DASHBOARD
}

func (c Claims) hasAnyRole(roles []user.Role) bool {
	if len(roles) == 0 {
		return true
	}
	for _, r := range roles {
		if c.Role == r {
			return true
		}
	}
	return false
}

type jwtAuth struct {
	conf   *core.Config
	config middleware.JWTConfig
}

func newJWTAuth(conf *core.Config) *jwtAuth {
	return &jwtAuth{
		conf: conf,
		config: middleware.JWTConfig{
			SigningKey:    []byte(conf.SecretKey),
			SigningMethod: middleware.AlgorithmHS256,
			ContextKey:    contextTokenKey,
			Claims:        new(Claims),
		},
	}
}

func (a *jwtAuth) middleware() echo.MiddlewareFunc {
	return middleware.JWTWithConfig(a.config)
}

func (a *jwtAuth) userClaims(usr user.User, origIat ...int64) *Claims {
	now := time.Now()
	nownix := now.Unix()

	oriat := nownix
	if len(origIat) > 0 {
		oriat = origIat[0]
	}

	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    a.conf.AppName,
			Subject:   usr.ID,
			Audience:  "LoopVerse",
			ExpiresAt: now.Add(a.conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  nownix,
		},
		OrigIssuedAt: oriat,
		Email:        usr.Email,
		Name:         usr.Name,
		Role:         usr.Role,
		IsStudent:    usr.IsStudent(),
		IsTeacher:    usr.IsTeacher(),
		IsAdmin:      usr.IsAdmin(),
	}
}

// generateToken generates a signed JWT token string representing the user Claims.
func (a *jwtAuth) generateToken(claims *Claims) (string, error) {
	method := jwt.GetSigningMethod(a.config.SigningMethod)
	token := jwt.NewWithClaims(method, claims)

	ss, err := token.SignedString(a.config.SigningKey)
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

// newSession signs a token for usr and wraps it the way clients store it.
func (a *jwtAuth) newSession(usr user.User, origIat ...int64) (session.RemoteSession, error) {
	claims := a.userClaims(usr, origIat...)
	token, err := a.generateToken(claims)
	if err != nil {
		return session.RemoteSession{}, err
	}
	return session.RemoteSession{
		AccessToken: token,
		TokenType:   tokenType,
		ExpiresAt:   claims.ExpiresAt,
		User:        remoteUser(usr),
	}, nil
}

func remoteUser(usr user.User) session.RemoteUser {
	meta := map[string]string{"name": usr.Name}
	if usr.Role != user.RoleNone {
		meta["role"] = usr.Role.String()
	}
	return session.RemoteUser{ID: usr.ID, Email: usr.Email, Metadata: meta}
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(contextTokenKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

func getContextUser(ctx echo.Context, svc *user.Service, clms ...Claims) (user.User, error) {
	if usr, ok := ctx.Get(contextUserKey).(user.User); ok {
		return usr, nil
	}

	var claims Claims
	var err error
	if len(clms) > 0 {
		claims = clms[0]
	} else {
		claims, err = getContextClaims(ctx)
		if err != nil {
			return user.User{}, errors.Wrap(err, "getting context claims")
		}
	}

	usr, err := svc.GetByID(ctx.Request().Context(), claims.Subject)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return user.User{}, errUnauthorized
		}
		return user.User{}, errors.Wrap(err, "finding user by ID")
	}
	ctx.Set(contextUserKey, usr)
	return usr, nil
}

func (a *jwtAuth) refresh(ctx echo.Context, svc *user.Service) (session.RemoteSession, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return session.RemoteSession{}, errors.Wrap(err, "getting context claims")
	}

	usr, err := getContextUser(ctx, svc, claims)
	if err != nil {
		return session.RemoteSession{}, errors.Wrap(err, "getting context user")
	}

	// check if user is still active
	if !usr.IsActive {
		return session.RemoteSession{}, errAccountDeactivated
	}

	// check if refresh has not expired
	expTime := time.Unix(claims.OrigIssuedAt, 0).Add(a.conf.Server.JWTRefreshExpirationDelta)
	if time.Now().After(expTime) {
		return session.RemoteSession{}, errRefreshExpired
	}

	rs, err := a.newSession(usr, claims.OrigIssuedAt)
	return rs, errors.Wrap(err, "generating token")
}
