package api

import (
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/gmsas95/docdesk/internal/errors"
	"github.com/gmsas95/docdesk/internal/scope"
)

// IdempotencyHeader carries the client's retry key on structural endpoints
const IdempotencyHeader = "Idempotency-Key"

// Claims are the JWT claims the API resolves a caller scope from. The
// subject is the acting user.
type Claims struct {
	TenantID  string   `json:"tenant_id"`
	CompanyID string   `json:"company_id,omitempty"`
	Companies []string `json:"companies,omitempty"`
	jwt.RegisteredClaims
}

// Scope converts the claims into the caller scope
func (c *Claims) Scope() scope.Scope {
	return scope.Scope{
		TenantID:   c.TenantID,
		CompanyID:  c.CompanyID,
		ActorID:    c.Subject,
		CompanyIDs: c.Companies,
	}
}

// IssueToken signs an HS256 token for sc, valid for ttl
func IssueToken(secret string, sc scope.Scope, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		TenantID:  sc.TenantID,
		CompanyID: sc.CompanyID,
		Companies: sc.CompanyIDs,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sc.ActorID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func (s *Server) authMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		auth := c.Get("Authorization")
		if auth == "" {
			return c.Status(401).JSON(fiber.Map{"error": "missing authorization header"})
		}

		tokenString := strings.TrimPrefix(auth, "Bearer ")
		claims := &Claims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
			return []byte(s.config.Security.JWTSecret), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

		if err != nil || !token.Valid {
			return c.Status(401).JSON(fiber.Map{"error": "invalid token"})
		}
		if claims.TenantID == "" || claims.Subject == "" {
			return c.Status(401).JSON(fiber.Map{"error": "token has no tenant or subject"})
		}

		c.SetUserContext(scope.WithScope(c.UserContext(), claims.Scope()))
		return c.Next()
	}
}

// metricsMiddleware records every request against its route pattern, so
// document ids never become label values.
func (s *Server) metricsMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		if err != nil {
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}
		s.services.Metrics.RecordRequest(c.Route().Path, c.Response().StatusCode(), time.Since(start))
		return nil
	}
}

func requestScope(c *fiber.Ctx) (scope.Scope, error) {
	sc, ok := scope.FromContext(c.UserContext())
	if !ok {
		return scope.Scope{}, fmt.Errorf("request has no resolved scope")
	}
	return sc, nil
}

func idempotencyKey(c *fiber.Ctx) (string, error) {
	key := strings.TrimSpace(c.Get(IdempotencyHeader))
	if len(key) > 255 {
		return "", apperrors.Validation("%s must be at most 255 characters", IdempotencyHeader)
	}
	return key, nil
}
