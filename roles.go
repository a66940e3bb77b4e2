package auth

// SelfRegistrableRoles are the roles a caller may pick at registration
var SelfRegistrableRoles = []any{RoleJobSeeker, RoleEmployer}

// IsValidRole checks if the role is one of the predefined valid roles
func IsValidRole(role string) bool {
	switch role {
	case RoleJobSeeker, RoleEmployer, RoleAdmin:
		return true
	default:
		return false
	}
}

// CanPostJobs reports whether role may create job listings
func CanPostJobs(role string) bool {
	return role == RoleEmployer || role == RoleAdmin
}

// Authorize checks that account holds one of roles
func Authorize(account *Account, roles ...string) error {
	if account == nil {
		return ErrUnauthorized
	}

	if len(roles) == 0 || account.HasRole(roles...) {
		return nil
	}

	return WithMetadata(ErrForbidden, map[string]any{
		"role":     account.Role,
		"required": roles,
	})
}

// AuthorizeSelfOrAdmin allows the target account itself or any Admin
func AuthorizeSelfOrAdmin(account *Account, targetID string) error {
	if account == nil {
		return ErrUnauthorized
	}

	if account.Role == RoleAdmin || account.ID.String() == targetID {
		return nil
	}

	return WithMetadata(ErrForbidden, map[string]any{
		"target": targetID,
	})
}
