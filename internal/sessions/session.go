package sessions

import "time"

// Session is a server-side refresh session. One is created per login; the
// refresh token is the lookup key and is rotated on every refresh.
type Session struct {
	ID           string    `bson:"_id,omitempty" json:"id"`
	RefreshToken string    `bson:"refreshToken" json:"refreshToken"`
	UserID       string    `bson:"userId" json:"userId"`
	TenantID     string    `bson:"tenantId" json:"tenantId"`
	AccessJTI    string    `bson:"accessJti" json:"accessJti"`
	DeviceInfo   string    `bson:"deviceInfo,omitempty" json:"deviceInfo,omitempty"`
	IPAddress    string    `bson:"ipAddress,omitempty" json:"ipAddress,omitempty"`
	ExpiresAt    time.Time `bson:"expiresAt" json:"expiresAt"`
	CreatedAt    time.Time `bson:"createdAt" json:"createdAt"`
}
