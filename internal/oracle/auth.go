package oracle

import (
	"github.com/ethereum/go-ethereum/common"
)

// Operation names an administrative action checked by the Authorizer.
type Operation string

const (
	OpSetSource Operation = "setSource"
	OpSetMaxAge Operation = "setMaxAge"
	OpSetBounds Operation = "setBounds"
)

// Operations lists every gated operation.
var Operations = []Operation{OpSetSource, OpSetMaxAge, OpSetBounds}

// Authorizer decides whether caller may perform op.
type Authorizer interface {
	Authorize(caller common.Address, op Operation) bool
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(caller common.Address, op Operation) bool

// Authorize calls f.
func (f AuthorizerFunc) Authorize(caller common.Address, op Operation) bool { return f(caller, op) }

// RoleAuthorizer grants operations to fixed sets of callers.
type RoleAuthorizer struct {
	grants map[Operation]map[common.Address]struct{}
}

// NewRoleAuthorizer grants every operation to admins and the listed
// operations to the callers in grants.
func NewRoleAuthorizer(admins []common.Address, grants map[Operation][]common.Address) *RoleAuthorizer {
	ra := &RoleAuthorizer{grants: make(map[Operation]map[common.Address]struct{})}
	for _, op := range Operations {
		ra.grants[op] = make(map[common.Address]struct{})
		for _, admin := range admins {
			ra.grants[op][admin] = struct{}{}
		}
	}
	for op, callers := range grants {
		set, ok := ra.grants[op]
		if !ok {
			set = make(map[common.Address]struct{})
			ra.grants[op] = set
		}
		for _, caller := range callers {
			set[caller] = struct{}{}
		}
	}
	return ra
}

// Authorize reports whether caller holds op.
func (ra *RoleAuthorizer) Authorize(caller common.Address, op Operation) bool {
	_, ok := ra.grants[op][caller]
	return ok
}

var _ Authorizer = (*RoleAuthorizer)(nil)
var _ Authorizer = AuthorizerFunc(nil)
