package models

import "time"

// User represents a knowledge-base account. The JSON shape matches what the
// auth endpoints return to clients; PasswordHash never leaves the server.
type User struct {
	ID                  string         `bson:"_id,omitempty" json:"id"`
	TenantID            string         `bson:"tenantId" json:"tenant_id"`
	Email               string         `bson:"email" json:"email"`
	PasswordHash        string         `bson:"passwordHash" json:"-"`
	FullName            string         `bson:"fullName" json:"full_name"`
	Role                string         `bson:"role" json:"role"` // admin | member
	EmailVerified       bool           `bson:"emailVerified" json:"email_verified"`
	MFAEnabled          bool           `bson:"mfaEnabled" json:"mfa_enabled"`
	IsActive            bool           `bson:"isActive" json:"is_active"`
	Timezone            string         `bson:"timezone,omitempty" json:"timezone,omitempty"`
	Preferences         map[string]any `bson:"preferences,omitempty" json:"preferences,omitempty"`
	FailedLoginAttempts int            `bson:"failedLoginAttempts" json:"-"`
	LockedUntil         *time.Time     `bson:"lockedUntil,omitempty" json:"-"`
	LastLoginAt         *time.Time     `bson:"lastLoginAt,omitempty" json:"last_login_at,omitempty"`
	CreatedAt           time.Time      `bson:"createdAt" json:"created_at"`
	UpdatedAt           time.Time      `bson:"updatedAt" json:"updated_at"`
}

// Tenant is the organization a user belongs to. Every signup provisions one.
type Tenant struct {
	ID                string    `bson:"_id,omitempty" json:"id"`
	Name              string    `bson:"name" json:"name"`
	Slug              string    `bson:"slug" json:"slug"`
	Plan              string    `bson:"plan" json:"plan"` // free | pro | enterprise
	StorageQuotaBytes int64     `bson:"storageQuotaBytes" json:"storage_quota_bytes"`
	StorageUsedBytes  int64     `bson:"storageUsedBytes" json:"storage_used_bytes"`
	IsActive          bool      `bson:"isActive" json:"is_active"`
	CreatedAt         time.Time `bson:"createdAt" json:"created_at"`
}

const (
	RoleAdmin  = "admin"
	RoleMember = "member"

	PlanFree = "free"
)

// DefaultStorageQuota is the free-plan allowance (5 GiB).
const DefaultStorageQuota int64 = 5 << 30
