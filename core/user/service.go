package user

import (
	"context"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/loopverse/campus/core"
)

var (
	// errors
	ErrNotFound           = errors.New("user not found")
	ErrProfileNotFound    = errors.New("profile not found")
	ErrPushTokenNotFound  = errors.New("push token not found")
	ErrEmailExists        = errors.New("a user with this email already exists")
	ErrProfileExists      = errors.New("a profile already exists for this user")
	ErrInvalidCredentials = errors.New("invalid login credentials")
	ErrAccountDeactivated = errors.New("account deactivated")
	ErrAdminSignUp        = errors.New("admin accounts are created by an administrator")
)

type (
	Repository interface {
		CreateUser(ctx context.Context, usr User) (User, error)
		GetUserByID(ctx context.Context, id string) (User, error)
		GetUserByEmail(ctx context.Context, email string) (User, error)
		UpdateUser(ctx context.Context, usr User) (User, error)

		GetProfile(ctx context.Context, id string) (Profile, error)
		InsertProfile(ctx context.Context, prof Profile) (Profile, error)
		// QueryProfiles applies AND operation on available ProfileFilter fields.
		// ProfileFilter.Search does a case-insensitive match on one of Profile.Name or Profile.Email.
		QueryProfiles(ctx context.Context, filter ProfileFilter, ordering []core.DBOrdering) ([]Profile, error)

		SavePushToken(ctx context.Context, tok PushToken) (PushToken, error)
		GetPushToken(ctx context.Context, token string) (PushToken, error)
	}

	Service struct {
		repo     Repository
		mailSvc  core.EmailService
		tokenGen *resetTokenGenerator
	}
)

func NewService(repo Repository, mailSvc core.EmailService, conf *core.Config) *Service {
	return &Service{
		repo:     repo,
		mailSvc:  mailSvc,
		tokenGen: newResetTokenGenerator(conf.SecretKey, conf.Server.PasswordResetTimeoutDelta),
	}
}

func (svc *Service) checkUniqueness(email string) error {
	_, err := svc.repo.GetUserByEmail(context.Background(), email)
	switch {
	case err == nil:
		return core.NewValidationError(ErrEmailExists, core.FieldError{Field: "email", Error: ErrEmailExists.Error()})
	case errors.Is(err, ErrNotFound):
		return nil
	default:
		return errors.Wrap(err, "checking email uniqueness")
	}
}

// Create stores a new active User. Validation is the caller's job.
func (svc *Service) Create(ctx context.Context, nu NewUser) (User, error) {
	now := time.Now().UTC()
	usr := User{
		ID:        uuid.NewString(),
		Email:     nu.Email,
		Name:      nu.Name,
		Role:      nu.Role,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}
	return svc.repo.CreateUser(ctx, usr)
}

// SignUp creates the User and welcomes them by email.
func (svc *Service) SignUp(ctx context.Context, nu NewUser) (User, error) {
	usr, err := svc.Create(ctx, nu)
	if err != nil {
		return User{}, err
	}
	svc.sendWelcomeMail(usr)
	return usr, nil
}

func (svc *Service) sendWelcomeMail(usr User) {
	name := usr.Name
	if name == "" {
		name = "there"
	}
	role := usr.Role
	if role == RoleNone {
		role = RoleStudent
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      "Welcome!",
		TemplateName: "welcome",
		TemplateData: struct{ Name, Email, Role string }{name, usr.Email, string(role)},
	})
}

// Authenticate checks the credentials and stamps the login time.
func (svc *Service) Authenticate(ctx context.Context, email, pwd string) (User, error) {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return User{}, ErrInvalidCredentials
		}
		return User{}, errors.Wrap(err, "finding user by email")
	}
	if err = usr.CheckPassword(pwd); err != nil {
		return User{}, ErrInvalidCredentials
	}
	if !usr.IsActive {
		return User{}, ErrAccountDeactivated
	}
	return svc.SetLastLogin(ctx, usr)
}

func (svc *Service) SetLastLogin(ctx context.Context, usr User) (User, error) {
	usr.LastLogin = null.TimeFrom(time.Now().UTC())
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *Service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUserByID(ctx, id)
}

func (svc *Service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUserByEmail(ctx, core.CleanString(email, true /* lower */))
}

func (svc *Service) ResetPassword(ctx context.Context, email, pwd string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if err = usr.SetPassword(pwd); err != nil {
		return errors.Wrap(err, "hashing password")
	}
	usr.UpdatedAt = time.Now().UTC()
	_, err = svc.repo.UpdateUser(ctx, usr)
	return err
}

// RequestPasswordReset mails a reset link to the User owning email.
func (svc *Service) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if !usr.IsActive {
		return ErrAccountDeactivated
	}
	token, err := svc.tokenGen.makeToken(usr)
	if err != nil {
		return errors.Wrap(err, "making password reset token")
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      "Password reset",
		TemplateName: "password_reset",
		TemplateData: struct{ Name, UID, Token string }{usr.Name, EncodeUID(usr), token},
	})
	return nil
}

// ConfirmPasswordReset sets a new password once the reset token checks out.
func (svc *Service) ConfirmPasswordReset(ctx context.Context, rp ResetUserPassword) error {
	id, err := DecodeUID(rp.UID)
	if err != nil {
		return core.NewValidationError(ErrInvalidToken, core.FieldError{Field: "uid", Error: ErrInvalidToken.Error()})
	}
	usr, err := svc.repo.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return core.NewValidationError(ErrInvalidToken, core.FieldError{Field: "uid", Error: ErrInvalidToken.Error()})
		}
		return errors.Wrap(err, "finding user by ID")
	}
	if err = svc.tokenGen.verifyToken(usr, rp.Token); err != nil {
		return core.NewValidationError(err, core.FieldError{Field: "token", Error: err.Error()})
	}
	if err = usr.SetPassword(rp.Password); err != nil {
		return errors.Wrap(err, "hashing password")
	}
	usr.UpdatedAt = time.Now().UTC()
	_, err = svc.repo.UpdateUser(ctx, usr)
	return err
}

func (svc *Service) GetProfile(ctx context.Context, id string) (Profile, error) {
	return svc.repo.GetProfile(ctx, id)
}

func (svc *Service) CreateProfile(ctx context.Context, np NewProfile) (Profile, error) {
	now := time.Now().UTC()
	prof := Profile{
		ID:        np.ID,
		Email:     np.Email,
		Name:      null.NewString(np.Name, np.Name != ""),
		Role:      null.NewString(string(np.Role), np.Role != RoleNone),
		CreatedAt: now,
		UpdatedAt: now,
	}
	return svc.repo.InsertProfile(ctx, prof)
}

func (svc *Service) QueryProfiles(ctx context.Context, filter ProfileFilter, ordering []core.DBOrdering) ([]Profile, error) {
	return svc.repo.QueryProfiles(ctx, filter, ordering)
}

// RegisterPushToken issues a new push token for the User.
func (svc *Service) RegisterPushToken(ctx context.Context, userID string) (PushToken, error) {
	return svc.repo.SavePushToken(ctx, PushToken{
		Token:     uuid.NewString(),
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
	})
}

func (svc *Service) ResolvePushToken(ctx context.Context, token string) (PushToken, error) {
	return svc.repo.GetPushToken(ctx, token)
}

// UsersWithRoles returns the ids of every User whose profile carries one of roles.
func (svc *Service) UsersWithRoles(ctx context.Context, roles ...Role) ([]string, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	profs, err := svc.repo.QueryProfiles(ctx, ProfileFilter{Roles: roles}, nil)
	if err != nil {
		return nil, errors.Wrap(err, "querying profiles")
	}
	ids := make([]string, 0, len(profs))
	for _, p := range profs {
		ids = append(ids, p.ID)
	}
	return ids, nil
}
