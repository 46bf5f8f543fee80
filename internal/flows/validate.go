package flows

import (
	"context"

	"github.com/MrEthical07/authcore/jwt"
)

// VerifyFailureKind classifies access-token verification failures for root-level mapping.
type VerifyFailureKind int

const (
	VerifyFailureNone VerifyFailureKind = iota
	VerifyFailureDecode
	VerifyFailureRevoked
	VerifyFailureRevocationStore
	VerifyFailureUserStore
	VerifyFailureDisabled
)

// VerifyResult returns either the verified claims or a classified failure.
type VerifyResult struct {
	Failure VerifyFailureKind
	Err     error
	Claims  *jwt.Claims
}

// VerifyDeps captures access-token verification dependencies.
type VerifyDeps struct {
	DecodeAccess func(string) (*jwt.Claims, error)
	IsRevoked    func(context.Context, string) (bool, error)
	// IsActive reports whether the subject may still use its tokens. Unknown subjects
	// report false.
	IsActive func(context.Context, string) (bool, error)
}

// RunVerify checks, in order: signature and expiry, the revocation list, and the subject's
// active flag.
func RunVerify(ctx context.Context, tokenStr string, deps VerifyDeps) VerifyResult {
	claims, err := deps.DecodeAccess(tokenStr)
	if err != nil {
		return VerifyResult{Failure: VerifyFailureDecode, Err: err}
	}

	revoked, err := deps.IsRevoked(ctx, tokenStr)
	if err != nil {
		return VerifyResult{Failure: VerifyFailureRevocationStore, Err: err, Claims: claims}
	}
	if revoked {
		return VerifyResult{Failure: VerifyFailureRevoked, Claims: claims}
	}

	active, err := deps.IsActive(ctx, claims.Subject)
	if err != nil {
		return VerifyResult{Failure: VerifyFailureUserStore, Err: err, Claims: claims}
	}
	if !active {
		return VerifyResult{Failure: VerifyFailureDisabled, Claims: claims}
	}

	return VerifyResult{Claims: claims}
}
