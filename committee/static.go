package committee

import (
	"sync"

	"github.com/ruteri/tee-service-provisioning-backend/attestation"
)

// StaticOracle is an in-memory allow/deny set for tests and for operators
// running a private pool who want to bypass on-chain governance. It is
// never the default; production configuration always selects SafeOracle.
type StaticOracle struct {
	mu      sync.RWMutex
	allowed map[string]bool
	revoked map[string]bool
}

// NewStaticOracle returns an oracle with nothing authorized.
func NewStaticOracle() *StaticOracle {
	return &StaticOracle{
		allowed: make(map[string]bool),
		revoked: make(map[string]bool),
	}
}

// Allow marks measurementString as authorized.
func (o *StaticOracle) Allow(measurementString string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.allowed[measurementString] = true
}

// Revoke marks measurementString as revoked; a revocation always wins over
// a prior Allow, mirroring the on-chain REVOKE-prefix precedence rule.
func (o *StaticOracle) Revoke(measurementString string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.revoked[measurementString] = true
}

func (o *StaticOracle) IsAuthorized(_ Kind, measurementString string) (bool, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.revoked[measurementString] {
		return false, nil
	}
	return o.allowed[measurementString], nil
}

func (o *StaticOracle) AuthorizeAttestation(v attestation.Verified) error {
	return authorizeBoth(o, v)
}
