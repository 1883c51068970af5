package tracker

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"campus_shuttle/internal/backend"
	"campus_shuttle/internal/models"
)

// collegeEmail matches addresses on an .edu domain.
var collegeEmail = regexp.MustCompile(`(?i)^[^\s@]+@[^\s@]+\.edu$`)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 6

type SignupInput struct {
	Email         string
	Password      string
	Name          string
	Phone         string
	LicenseNumber string // drivers only
}

// Validate checks the input for the given role without contacting the backend.
func (in SignupInput) Validate(role models.UserRole) error {
	if strings.TrimSpace(in.Name) == "" {
		return invalid("name", "Please enter your name")
	}
	if strings.TrimSpace(in.Phone) == "" {
		return invalid("phone", "Please enter your phone number")
	}
	if strings.TrimSpace(in.Email) == "" {
		return invalid("email", "Please enter your email")
	}
	if len(in.Password) < MinPasswordLength {
		return invalid("password", fmt.Sprintf("Password must be at least %d characters", MinPasswordLength))
	}
	switch role {
	case models.RoleStudent:
		if !IsCollegeEmail(in.Email) {
			return invalid("email", "Students must use a college email (e.g. name@college.edu)")
		}
	case models.RoleDriver:
		if strings.TrimSpace(in.LicenseNumber) == "" {
			return invalid("license_number", "Please enter your license number")
		}
	default:
		return invalid("role", fmt.Sprintf("unknown role %q", role))
	}
	return nil
}

// IsCollegeEmail reports whether email is on an .edu domain.
func IsCollegeEmail(email string) bool {
	return collegeEmail.MatchString(strings.TrimSpace(email))
}

// Accounts handles sign-up, sign-in and profile lookups.
type Accounts struct {
	backend backend.Backend
	timeout time.Duration
	log     *logrus.Entry
}

func NewAccounts(b backend.Backend, timeout time.Duration, log *logrus.Entry) *Accounts {
	if log == nil {
		log = logrus.WithField("component", "accounts")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Accounts{backend: b, timeout: timeout, log: log}
}

func (a *Accounts) SignUpStudent(ctx context.Context, in SignupInput) (*backend.Session, error) {
	return a.signUp(ctx, models.RoleStudent, in)
}

func (a *Accounts) SignUpDriver(ctx context.Context, in SignupInput) (*backend.Session, error) {
	return a.signUp(ctx, models.RoleDriver, in)
}

func (a *Accounts) signUp(ctx context.Context, role models.UserRole, in SignupInput) (*backend.Session, error) {
	if err := in.Validate(role); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	phone := strings.TrimSpace(in.Phone)
	license := ""
	if role == models.RoleDriver {
		license = strings.TrimSpace(in.LicenseNumber)
	}

	metadata := map[string]string{
		"user_type": string(role),
		"full_name": name,
		"phone":     phone,
	}
	if license != "" {
		metadata["license_number"] = license
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	session, err := a.backend.SignUp(ctx, strings.TrimSpace(in.Email), in.Password, metadata)
	if err != nil {
		return nil, fmt.Errorf("sign up failed: %w", err)
	}
	if session == nil {
		return nil, nil
	}

	profile := models.Profile{
		ID:            session.User.ID,
		UserType:      role,
		FullName:      name,
		Phone:         phone,
		LicenseNumber: license,
		UpdatedAt:     time.Now().UTC(),
	}
	if err := a.backend.Upsert(ctx, ProfilesTable, profile, nil); err != nil {
		// The account exists; role lookup falls back to session metadata.
		a.log.WithError(err).WithField("user_id", profile.ID).Warn("Profile creation warning")
	}
	return session, nil
}

func (a *Accounts) SignIn(ctx context.Context, email, password string) (*backend.Session, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, invalid("email", "Please enter your email and password")
	}
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	session, err := a.backend.SignInWithPassword(ctx, strings.TrimSpace(email), password)
	if err != nil {
		return nil, fmt.Errorf("sign in failed: %w", err)
	}
	return session, nil
}

func (a *Accounts) SignOut(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	if err := a.backend.SignOut(ctx); err != nil {
		return fmt.Errorf("sign out failed: %w", err)
	}
	return nil
}

// Profile returns the user's profile, or nil if none was created.
func (a *Accounts) Profile(ctx context.Context, userID string) (*models.Profile, error) {
	if userID == "" {
		return nil, ErrNotSignedIn
	}
	return lookupProfile(ctx, a.backend, userID, a.timeout)
}
