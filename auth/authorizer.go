package auth

import (
	"sync"

	"deal-lab/contract"
	"deal-lab/domain"
)

const elevatedRole = "admin"

// Authorizer answers standing questions for a caller identity.
// Participant standing comes from the transaction itself; elevated
// privilege comes from the roles observed in the caller's validated
// token, cached at connection time.
type Authorizer struct {
	mu    sync.RWMutex
	roles map[string][]string
}

func NewAuthorizer() *Authorizer {
	return &Authorizer{roles: make(map[string][]string)}
}

// GrantRoles records the roles carried by a validated token.
func (a *Authorizer) GrantRoles(userID string, roles []string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.roles[userID] = roles
}

func (a *Authorizer) IsParticipant(userID string, t domain.Transaction) bool {
	return t.IsParticipant(userID)
}

func (a *Authorizer) IsElevated(userID string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, role := range a.roles[userID] {
		if role == elevatedRole {
			return true
		}
	}
	return false
}

var _ contract.IAuthorizer = (*Authorizer)(nil)
