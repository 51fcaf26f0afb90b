// Package authz decides which ledger operations a role may perform.
package authz

import "hisab/internal/core"

// Operation is a closed enum of guarded actions.
type Operation string

const (
	OpViewLedger           Operation = "view_ledger"
	OpAddTransaction       Operation = "add_transaction"
	OpDeleteTransaction    Operation = "delete_transaction"
	OpManageManagers       Operation = "manage_managers"
	OpChangeOwnCredentials Operation = "change_own_credentials"
)

// Can reports whether role is allowed to perform op. Unknown roles and
// unknown operations are denied.
func Can(role core.Role, op Operation) bool {
	switch role {
	case core.RoleOwner:
		switch op {
		case OpViewLedger, OpAddTransaction, OpDeleteTransaction,
			OpManageManagers, OpChangeOwnCredentials:
			return true
		}
	case core.RoleManager:
		switch op {
		case OpViewLedger, OpAddTransaction, OpChangeOwnCredentials:
			return true
		}
	}
	return false
}
