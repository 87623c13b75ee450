package middleware

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/explab-api/internal/utils"
)

// Roles carried in the JWT role claim.
const (
	RoleStudent = "student"
	RoleTeacher = "teacher"
	RoleAdmin   = "admin"
)

// StaffRoles may grade, review and broadcast on behalf of a class.
var StaffRoles = []string{RoleTeacher, RoleAdmin}

// IsStaff reports whether role is one of StaffRoles.
func IsStaff(role string) bool {
	normalized := normalizeRoleValue(role)
	for _, staff := range StaffRoles {
		if normalized == staff {
			return true
		}
	}
	return false
}

// RequireRole rejects requests whose user_role local is not in roles. A
// missing role is reported as unauthenticated rather than forbidden.
func RequireRole(roles ...string) fiber.Handler {
	allowed := make(map[string]struct{}, len(roles))
	names := make([]string, 0, len(roles))
	for _, role := range roles {
		normalized := normalizeRoleValue(role)
		if normalized == "" {
			continue
		}
		if _, dup := allowed[normalized]; !dup {
			names = append(names, normalized)
		}
		allowed[normalized] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		role := normalizeRoleValue(c.Locals("user_role"))
		if role == "" {
			return utils.SendError(c, fiber.StatusUnauthorized, "user role missing")
		}
		if _, ok := allowed[role]; !ok {
			return utils.Fail(c, fiber.StatusForbidden, "insufficient permissions", fiber.Map{"required_roles": names})
		}
		return c.Next()
	}
}

func normalizeRoleValue(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return strings.ToLower(strings.TrimSpace(v))
	case fmt.Stringer:
		return strings.ToLower(strings.TrimSpace(v.String()))
	default:
		return strings.ToLower(strings.TrimSpace(fmt.Sprint(v)))
	}
}
