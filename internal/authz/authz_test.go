package authz

import (
	"testing"

	"hisab/internal/core"
)

func TestCan(t *testing.T) {
	cases := []struct {
		role core.Role
		op   Operation
		want bool
	}{
		{core.RoleOwner, OpViewLedger, true},
		{core.RoleOwner, OpAddTransaction, true},
		{core.RoleOwner, OpDeleteTransaction, true},
		{core.RoleOwner, OpManageManagers, true},
		{core.RoleOwner, OpChangeOwnCredentials, true},
		{core.RoleManager, OpViewLedger, true},
		{core.RoleManager, OpAddTransaction, true},
		{core.RoleManager, OpChangeOwnCredentials, true},
		{core.RoleManager, OpDeleteTransaction, false},
		{core.RoleManager, OpManageManagers, false},
		{core.Role("admin"), OpViewLedger, false},
		{core.RoleOwner, Operation("drop_tables"), false},
	}
	for _, tc := range cases {
		t.Run(string(tc.role)+"/"+string(tc.op), func(t *testing.T) {
			if got := Can(tc.role, tc.op); got != tc.want {
				t.Errorf("Can(%q, %q) = %v, want %v", tc.role, tc.op, got, tc.want)
			}
		})
	}
}
