package tokens

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/lorekeep/lorekeep/internal/config"
	"github.com/lorekeep/lorekeep/internal/models"
)

// ErrInvalidToken is returned for any token that fails signature, expiry or
// type checks. Callers must not distinguish further (avoid oracle responses).
var ErrInvalidToken = errors.New("invalid token")

// Claims is the verified payload of a Lorekeep access token.
type Claims struct {
	UserID   string
	TenantID string
	Email    string
	Role     string
	JTI      string
	Expires  time.Time
}

// GenerateAccessToken creates a signed HS256 JWT for the user. The jti claim
// uniquely identifies the token so logout can blacklist it.
func GenerateAccessToken(cfg *config.Config, u *models.User, ttl time.Duration) (string, string, error) {
	jti := uuid.NewString()
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":       u.ID,
		"tenant_id": u.TenantID,
		"email":     u.Email,
		"role":      u.Role,
		"jti":       jti,
		"type":      "access",
		"iat":       now.Unix(),
		"exp":       now.Add(ttl).Unix(),
	}
	jt := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := jt.SignedString([]byte(cfg.JWT.Secret))
	if err != nil {
		return "", "", err
	}
	return signed, jti, nil
}

// ParseAccessToken verifies the signature and expiry and extracts claims.
func ParseAccessToken(cfg *config.Config, raw string) (*Claims, error) {
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(cfg.JWT.Secret), nil
	})
	if err != nil || !tok.Valid {
		return nil, ErrInvalidToken
	}
	mc, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	if typ, _ := mc["type"].(string); typ != "access" {
		return nil, ErrInvalidToken
	}
	c := &Claims{}
	c.UserID, _ = mc["sub"].(string)
	c.TenantID, _ = mc["tenant_id"].(string)
	c.Email, _ = mc["email"].(string)
	c.Role, _ = mc["role"].(string)
	c.JTI, _ = mc["jti"].(string)
	if c.UserID == "" {
		return nil, ErrInvalidToken
	}
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		c.Expires = exp.Time
	}
	return c, nil
}
