package services

import (
	"crypto/subtle"

	"hookrunner-server/models"
)

// AuthGuard checks presented API keys against the known key set and against
// handler ownership. The key set is loaded once at startup from the key
// store and is read-only afterwards.
type AuthGuard struct {
	keys map[string]string // api key -> tenant
}

// NewAuthGuard builds a guard over the known keys.
func NewAuthGuard(keys map[string]string) *AuthGuard {
	if keys == nil {
		keys = map[string]string{}
	}
	return &AuthGuard{keys: keys}
}

// VerifyKey reports whether the presented key is known and which tenant it
// identifies. Every known key is compared so the lookup cost does not
// depend on where (or whether) a match occurs.
func (g *AuthGuard) VerifyKey(presented string) (string, bool) {
	tenant := ""
	found := false
	for key, t := range g.keys {
		if constantTimeEqual(key, presented) {
			tenant = t
			found = true
		}
	}
	return tenant, found
}

// Authorize checks that the presented key owns the handler.
func (g *AuthGuard) Authorize(ownerKey, presented string) error {
	if !constantTimeEqual(ownerKey, presented) {
		return &models.AuthError{Reason: "api key does not own this handler"}
	}
	return nil
}

func constantTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
