package interfaces

import "github.com/Vinmsh25/skillbarter/pkg/types"

// TokenVerifier checks a bearer credential and returns the identity it
// carries. Verification is consumed as a black box; issuance lives elsewhere.
type TokenVerifier interface {
	Verify(token string) (types.Identity, error)
}
