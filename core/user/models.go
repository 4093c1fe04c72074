package user

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"
	"golang.org/x/crypto/bcrypt"

	"github.com/loopverse/campus/core"
)

// Role is one of the three application roles. The zero value means no role was chosen yet.
type Role string

// Roles
const (
	RoleNone    Role = ""
	RoleAdmin   Role = "admin"
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

var (
	AllRoles = []Role{RoleAdmin, RoleTeacher, RoleStudent}

	Roles = []RoleInfo{
		{Name: "Student", Value: RoleStudent},
		{Name: "Teacher", Value: RoleTeacher},
		{Name: "Admin", Value: RoleAdmin},
	}
)

type RoleInfo struct {
	Name  string `json:"name"`
	Value Role   `json:"value"`
}

func (r Role) String() string { return string(r) }

func (r Role) IsValid() bool {
	for _, role := range AllRoles {
		if r == role {
			return true
		}
	}
	return false
}

// ParseRole cleans s and reports whether it names a known Role.
func ParseRole(s string) (Role, bool) {
	r := Role(core.CleanString(s, true /* lower */))
	return r, r.IsValid()
}

type User struct {
	ID           string    `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	Name         string    `json:"name" db:"name"`
	Role         Role      `json:"role" db:"role"`
	IsActive     bool      `json:"is_active" db:"is_active"`
	PasswordHash []byte    `json:"-" db:"password_hash"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"` // UTC
	LastLogin    null.Time `json:"last_login" db:"last_login"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) IsAdmin() bool   { return u.Role == RoleAdmin }
func (u *User) IsTeacher() bool { return u.Role == RoleTeacher }
func (u *User) IsStudent() bool { return u.Role == RoleStudent }

// Profile is a row of the profiles table. Name and Role stay null until the client fills them in.
type Profile struct {
	ID        string      `json:"id" db:"id"`
	Email     string      `json:"email" db:"email"`
	Name      null.String `json:"name" db:"name"`
	Role      null.String `json:"role" db:"role"`
	CreatedAt time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt time.Time   `json:"updated_at" db:"updated_at"`
}

type PushToken struct {
	Token     string    `json:"token" db:"token"`
	UserID    string    `json:"user_id" db:"user_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// NewUser contains information needed to create a new User.
type NewUser struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Name     string `json:"name"`
	Role     Role   `json:"role" validate:"omitempty,role"`
}

func (nu *NewUser) Validate(validate *validator.Validate, svc *Service) error {
	nu.Name = core.CleanString(nu.Name)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.Role = Role(core.CleanString(string(nu.Role), true /* lower */))

	if err := validate.Struct(nu); err != nil {
		return err
	}
	return svc.checkUniqueness(nu.Email)
}

type ResetUserPassword struct {
	UID      string `json:"uid" validate:"required"`
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (rp ResetUserPassword) Validate(validate *validator.Validate) error { return validate.Struct(rp) }

// NewProfile defines what a client may insert into the profiles table.
type NewProfile struct {
	ID    string `json:"id" validate:"required,uuid"`
	Email string `json:"email" validate:"required,email"`
	Name  string `json:"name"`
	Role  Role   `json:"role" validate:"omitempty,role"`
}

func (np *NewProfile) Validate(validate *validator.Validate) error {
	np.Name = core.CleanString(np.Name)
	np.Email = core.CleanString(np.Email, true /* lower */)
	np.Role = Role(core.CleanString(string(np.Role), true /* lower */))
	return validate.Struct(np)
}

type ProfileFilter struct {
	Search string `query:"search"`
	Roles  []Role `query:"role"`
}

func (pf *ProfileFilter) Clean() {
	pf.Search = core.CleanString(pf.Search)
	roles := pf.Roles[:0]
	for _, r := range pf.Roles {
		if role, ok := ParseRole(string(r)); ok {
			roles = append(roles, role)
		}
	}
	pf.Roles = roles
}

func (pf *ProfileFilter) IsEmpty() bool {
	return pf.Search == "" && len(pf.Roles) == 0
}
