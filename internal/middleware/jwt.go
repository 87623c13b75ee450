package middleware

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/noah-isme/explab-api/internal/utils"
)

// Claims is the token payload issued by the platform's identity service. The
// subject carries the numeric user id; older tokens put it in user_id.
type Claims struct {
	UserID json.Number `json:"user_id,omitempty"`
	Role   string      `json:"role,omitempty"`
	Roles  []string    `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

var errMissingSubject = errors.New("token subject missing")

// Principal returns the user id and lower-cased primary role of the token.
func (c Claims) Principal() (uint, string, error) {
	id, err := parseSubject(c.Subject)
	if err != nil && c.UserID != "" {
		id, err = parseSubject(c.UserID.String())
	}
	if err != nil {
		return 0, "", errMissingSubject
	}

	role := strings.ToLower(strings.TrimSpace(c.Role))
	for _, candidate := range c.Roles {
		if role != "" {
			break
		}
		role = strings.ToLower(strings.TrimSpace(candidate))
	}

	return id, role, nil
}

func parseSubject(raw string) (uint, error) {
	parsed, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil || parsed == 0 {
		return 0, errMissingSubject
	}
	return uint(parsed), nil
}

// JWTProtected validates HMAC-signed bearer tokens and stores the caller in
// the user_id and user_role locals. Browsers cannot set headers on websocket
// upgrades, so those requests may pass the token as ?token= instead.
func JWTProtected(secret string) fiber.Handler {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithLeeway(30*time.Second),
	)
	keyFunc := func(*jwt.Token) (interface{}, error) { return []byte(secret), nil }

	return func(c *fiber.Ctx) error {
		raw, err := bearerToken(c)
		if err != nil {
			return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
		}

		var claims Claims
		if _, err := parser.ParseWithClaims(raw, &claims, keyFunc); err != nil {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid token")
		}

		userID, role, err := claims.Principal()
		if err != nil {
			return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
		}

		c.Locals("user_id", userID)
		if role != "" {
			c.Locals("user_role", role)
		}
		return c.Next()
	}
}

func bearerToken(c *fiber.Ctx) (string, error) {
	header := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if header == "" {
		if !isWebsocketUpgrade(c) {
			return "", errors.New("authorization header missing")
		}
		token := strings.TrimSpace(c.Query("token"))
		if token == "" {
			return "", errors.New("authorization header missing")
		}
		return token, nil
	}

	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", errors.New("invalid authorization header")
	}
	if token = strings.TrimSpace(token); token == "" {
		return "", errors.New("invalid token")
	}
	return token, nil
}

func isWebsocketUpgrade(c *fiber.Ctx) bool {
	return strings.EqualFold(c.Get(fiber.HeaderUpgrade), "websocket")
}
