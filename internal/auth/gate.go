package auth

import (
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/Vinmsh25/skillbarter/pkg/interfaces"
	"github.com/Vinmsh25/skillbarter/pkg/types"
)

// SubprotocolPrefix marks a credential smuggled through the WebSocket
// subprotocol list for clients that cannot set query parameters.
const SubprotocolPrefix = "access_token_"

// Gate resolves an identity for an incoming realtime connection. A missing
// or invalid credential yields an anonymous identity here; refusal is the
// membership guard's job, not the gate's.
type Gate struct {
	verifier interfaces.TokenVerifier
}

// NewGate creates a connection gate backed by a token verifier.
func NewGate(verifier interfaces.TokenVerifier) *Gate {
	return &Gate{verifier: verifier}
}

// CredentialFromRequest extracts the credential from the `token` query
// parameter, falling back to an offered `access_token_<credential>`
// subprotocol. The second return value is the subprotocol to echo back
// during the upgrade handshake, or "" when the query parameter was used.
func CredentialFromRequest(r *http.Request) (token, subprotocol string) {
	if token = r.URL.Query().Get("token"); token != "" {
		return token, ""
	}
	for _, proto := range websocket.Subprotocols(r) {
		if strings.HasPrefix(proto, SubprotocolPrefix) {
			return strings.TrimPrefix(proto, SubprotocolPrefix), proto
		}
	}
	return "", ""
}

// IdentityFromRequest verifies the request's credential. Absent or invalid
// credentials produce an anonymous identity.
func (g *Gate) IdentityFromRequest(r *http.Request) (types.Identity, string) {
	token, subprotocol := CredentialFromRequest(r)
	if token == "" {
		return types.Identity{}, subprotocol
	}

	identity, err := g.verifier.Verify(token)
	if err != nil {
		return types.Identity{}, subprotocol
	}
	return identity, subprotocol
}
