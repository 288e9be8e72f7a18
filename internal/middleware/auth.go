// Package middleware provides gin middleware for the administrative API
// surface: JWT employee authentication and abuse rate limiting. The token
// action endpoints themselves are unauthenticated; the single-use token is
// the credential.
package middleware

import (
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/fieldserve-io/fieldserve/internal/apierrors"
)

// Claims carried in employee JWTs.
type Claims struct {
	EmployeeID int    `json:"employee_id"`
	Role       string `json:"role"`
	jwt.RegisteredClaims
}

// JWTManager signs and validates employee tokens.
type JWTManager struct {
	secret []byte
	ttl    time.Duration
}

// NewJWTManager creates a JWT manager. A zero ttl selects the 24h default;
// negative values are kept as-is so tests can mint already-expired tokens.
func NewJWTManager(secret string, ttl time.Duration) *JWTManager {
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	return &JWTManager{secret: []byte(secret), ttl: ttl}
}

// GenerateToken issues a signed JWT for an employee.
func (m *JWTManager) GenerateToken(employeeID int, role string) (string, error) {
	now := time.Now()
	claims := Claims{
		EmployeeID: employeeID,
		Role:       role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprintf("%d", employeeID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			Issuer:    "fieldserve",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// ValidateToken parses and validates a signed JWT.
func (m *JWTManager) ValidateToken(rawToken string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(rawToken, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// AuthMiddleware authenticates requests with an employee JWT and exposes
// employee_id and employee_role on the gin context.
func AuthMiddleware(manager *JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := extractToken(c)
		if raw == "" {
			apierrors.Error(c, apierrors.CodeUnauthorized)
			c.Abort()
			return
		}

		claims, err := manager.ValidateToken(raw)
		if err != nil {
			apierrors.Error(c, apierrors.CodeUnauthorized)
			c.Abort()
			return
		}

		c.Set("employee_id", claims.EmployeeID)
		c.Set("employee_role", claims.Role)
		c.Next()
	}
}

// RequireRole aborts unless the authenticated employee has one of the
// given roles. Must run after AuthMiddleware.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString("employee_role")
		for _, allowed := range roles {
			if role == allowed {
				c.Next()
				return
			}
		}
		apierrors.Error(c, apierrors.CodeForbidden)
		c.Abort()
	}
}

// EmployeeID returns the authenticated employee's ID, or 0.
func EmployeeID(c *gin.Context) int {
	return c.GetInt("employee_id")
}

// extractToken pulls the bearer token from the Authorization header, with
// a query-parameter fallback for websocket upgrades.
func extractToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return c.Query("access_token")
}
