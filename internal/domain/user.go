package domain

type ContextKey string

const UserContextKey ContextKey = "user"

// Roles carried in the access token
const (
	RoleAdmin    = "admin"
	RoleAgent    = "agent"   // Delivery agent
	RoleService  = "service" // Checkout and back-office integrations
	RoleCustomer = "customer"
)

// User is the authenticated principal built from token claims.
// Accounts themselves live in the auth service.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// IsStaff reports whether the principal may act on any customer's order.
func (u *User) IsStaff() bool {
	return u.Role == RoleAdmin || u.Role == RoleService || u.Role == RoleAgent
}
