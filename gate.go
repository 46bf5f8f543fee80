package authcore

import "context"

// RequireValid is the authentication gate: it returns the verified claims of an access
// token or the VerifyAccess error.
func (e *Engine) RequireValid(ctx context.Context, token string) (*Claims, error) {
	return e.VerifyAccess(ctx, token)
}

// RequireRole is the authorization gate. It only inspects claims that came out of
// RequireValid; nil claims are rejected.
func RequireRole(claims *Claims, roles ...Role) error {
	if claims == nil {
		return ErrForbidden
	}
	for _, r := range roles {
		if Role(claims.Role) == r {
			return nil
		}
	}
	return ErrForbidden
}
