package domain

// Role names as stored in the user directory and carried in JWT claims.
const (
	RoleUser       = "user"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "super_admin"
)

// User is the directory projection this engine needs: enough to resolve
// broadcast targets and presence room memberships. Account management
// lives elsewhere.
type User struct {
	UserID   string `json:"id" dynamodbav:"user_id"`
	Username string `json:"username" dynamodbav:"username"`
	Role     string `json:"role" dynamodbav:"role"`
	// Active is stored as a number (1/0) so it can back a GSI hash key.
	Active int `json:"active" dynamodbav:"active"`
}

// IsAdminRole reports whether role grants admin-room membership.
func IsAdminRole(role string) bool {
	return role == RoleAdmin || role == RoleSuperAdmin
}
