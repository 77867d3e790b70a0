package users

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lorekeep/lorekeep/internal/models"
)

// AuthError carries a machine-readable code alongside a user-facing message.
// Codes mirror the REST error_code field.
type AuthError struct {
	Code    string
	Message string
}

func (e *AuthError) Error() string { return e.Message }

const (
	CodeInvalidEmail       = "INVALID_EMAIL"
	CodeWeakPassword       = "WEAK_PASSWORD"
	CodeEmailExists        = "EMAIL_EXISTS"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeAccountLocked      = "ACCOUNT_LOCKED"
	CodeTenantInactive     = "TENANT_INACTIVE"
)

const (
	maxFailedLogins = 5
	lockoutDuration = 15 * time.Minute
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// SignupInput is the data required to register a user and provision a tenant.
type SignupInput struct {
	Email            string
	Password         string
	FullName         string
	OrganizationName string
}

// Service encapsulates account business logic on top of the repositories.
type Service struct {
	users   UserRepository
	tenants TenantRepository
}

func NewService(u UserRepository, t TenantRepository) *Service {
	return &Service{users: u, tenants: t}
}

// Signup registers a new user and provisions a tenant. The first user of a
// tenant is always an admin.
func (s *Service) Signup(ctx context.Context, in SignupInput) (*models.User, *models.Tenant, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if !emailPattern.MatchString(email) {
		return nil, nil, &AuthError{Code: CodeInvalidEmail, Message: "Invalid email format"}
	}
	if violations := ValidatePasswordStrength(in.Password); len(violations) > 0 {
		return nil, nil, &AuthError{Code: CodeWeakPassword, Message: strings.Join(violations, "; ")}
	}
	existing, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, nil, err
	}
	if existing != nil {
		return nil, nil, &AuthError{Code: CodeEmailExists, Message: "An account with this email already exists"}
	}

	orgName := in.OrganizationName
	if orgName == "" {
		orgName = in.FullName + "'s Organization"
	}
	slug, err := s.uniqueSlug(ctx, orgName)
	if err != nil {
		return nil, nil, err
	}
	tenant := &models.Tenant{
		ID:                uuid.NewString(),
		Name:              orgName,
		Slug:              slug,
		Plan:              models.PlanFree,
		StorageQuotaBytes: models.DefaultStorageQuota,
		IsActive:          true,
	}
	if err := s.tenants.Create(ctx, tenant); err != nil {
		return nil, nil, err
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, nil, err
	}
	user := &models.User{
		ID:           uuid.NewString(),
		TenantID:     tenant.ID,
		Email:        email,
		PasswordHash: hash,
		FullName:     in.FullName,
		Role:         models.RoleAdmin,
		IsActive:     true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, nil, err
	}
	return user, tenant, nil
}

// Authenticate verifies credentials. Unknown emails and wrong passwords yield
// the same INVALID_CREDENTIALS error; five consecutive failures lock the
// account for fifteen minutes.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*models.User, *models.Tenant, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, nil, err
	}
	if user == nil {
		return nil, nil, &AuthError{Code: CodeInvalidCredentials, Message: "Invalid email or password"}
	}
	now := time.Now().UTC()
	if user.LockedUntil != nil && user.LockedUntil.After(now) {
		remaining := int(user.LockedUntil.Sub(now).Minutes()) + 1
		return nil, nil, &AuthError{
			Code:    CodeAccountLocked,
			Message: fmt.Sprintf("Account is locked. Try again in %d minutes", remaining),
		}
	}
	if !VerifyPassword(password, user.PasswordHash) {
		user.FailedLoginAttempts++
		if user.FailedLoginAttempts >= maxFailedLogins {
			until := now.Add(lockoutDuration)
			user.LockedUntil = &until
		}
		_ = s.users.Update(ctx, user)
		return nil, nil, &AuthError{Code: CodeInvalidCredentials, Message: "Invalid email or password"}
	}
	tenant, err := s.tenants.GetByID(ctx, user.TenantID)
	if err != nil {
		return nil, nil, err
	}
	if tenant == nil || !tenant.IsActive {
		return nil, nil, &AuthError{Code: CodeTenantInactive, Message: "Organization has been deactivated"}
	}

	user.FailedLoginAttempts = 0
	user.LockedUntil = nil
	user.LastLoginAt = &now
	if err := s.users.Update(ctx, user); err != nil {
		return nil, nil, err
	}
	return user, tenant, nil
}

// GetByID returns the user, or nil when not found.
func (s *Service) GetByID(ctx context.Context, id string) (*models.User, error) {
	return s.users.GetByID(ctx, id)
}

// GetTenant returns the tenant, or nil when not found.
func (s *Service) GetTenant(ctx context.Context, id string) (*models.Tenant, error) {
	return s.tenants.GetByID(ctx, id)
}

// ChangePassword verifies the current password and stores a new hash.
func (s *Service) ChangePassword(ctx context.Context, userID, current, next string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return &AuthError{Code: CodeInvalidCredentials, Message: "User not found"}
	}
	if !VerifyPassword(current, user.PasswordHash) {
		return &AuthError{Code: CodeInvalidCredentials, Message: "Current password is incorrect"}
	}
	if violations := ValidatePasswordStrength(next); len(violations) > 0 {
		return &AuthError{Code: CodeWeakPassword, Message: strings.Join(violations, "; ")}
	}
	hash, err := HashPassword(next)
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	return s.users.Update(ctx, user)
}

// ProfileUpdate carries the caller-editable account fields. Nil pointers
// leave the stored value alone; Preferences merge key-by-key.
type ProfileUpdate struct {
	FullName    *string
	Timezone    *string
	Preferences map[string]any
}

// UpdateProfile applies the allowed profile fields and returns the updated
// user.
func (s *Service) UpdateProfile(ctx context.Context, userID string, in ProfileUpdate) (*models.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, nil
	}
	if in.FullName != nil {
		user.FullName = *in.FullName
	}
	if in.Timezone != nil {
		user.Timezone = *in.Timezone
	}
	if len(in.Preferences) > 0 {
		if user.Preferences == nil {
			user.Preferences = make(map[string]any, len(in.Preferences))
		}
		for k, v := range in.Preferences {
			user.Preferences[k] = v
		}
	}
	if err := s.users.Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

var slugStrip = regexp.MustCompile(`[^a-z0-9]+`)

// uniqueSlug derives a URL-safe slug from the organization name, appending a
// counter until it is unique.
func (s *Service) uniqueSlug(ctx context.Context, name string) (string, error) {
	base := strings.Trim(slugStrip.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-"), "-")
	if base == "" {
		base = "org"
	}
	slug := base
	for i := 1; ; i++ {
		exists, err := s.tenants.SlugExists(ctx, slug)
		if err != nil {
			return "", err
		}
		if !exists {
			return slug, nil
		}
		slug = fmt.Sprintf("%s-%d", base, i)
	}
}
