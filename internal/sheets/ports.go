package sheets

import (
	"context"

	"hisab/internal/core"
)

// Ports for outbound adapters.
type (
	// ExpenseWriter appends one expense row to an external spreadsheet.
	ExpenseWriter interface {
		Append(ctx context.Context, tx core.Transaction) (rowRef string, err error)
	}
)
