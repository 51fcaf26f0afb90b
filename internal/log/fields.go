package log

// Common field names for structured logging
const (
	FieldComponent   = "component"
	FieldRequestID   = "request_id"
	FieldClientIP    = "client_ip"
	FieldMethod      = "method"
	FieldPath        = "path"
	FieldStatusCode  = "status_code"
	FieldDuration    = "duration_ms"
	FieldError       = "error"
	FieldOperation   = "operation"
	FieldUsername    = "username"
	FieldRole        = "role"
	FieldTxID        = "transaction_id"
	FieldTxType      = "transaction_type"
	FieldAmountCents = "amount_cents"
	FieldCollection  = "collection"
	FieldSheetsRange = "sheets_range"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentAuth      = "auth"
	ComponentLedger    = "ledger"
	ComponentStorage   = "storage"
	ComponentAMQP      = "amqp"
	ComponentWorker    = "worker"
	ComponentSheets    = "sheets"
	ComponentCache     = "cache"
	ComponentRateLimit = "rate_limit"
	ComponentTrace     = "trace"
	ComponentBackend   = "backend"
)

// Operations defines standard operation names
const (
	OpCreate   = "create"
	OpRead     = "read"
	OpUpdate   = "update"
	OpDelete   = "delete"
	OpList     = "list"
	OpAppend   = "append"
	OpRefresh  = "refresh"
	OpLogin    = "login"
	OpLogout   = "logout"
	OpShutdown = "shutdown"
	OpStartup  = "startup"
)

// LogFields provides a builder for structured log fields.
type LogFields map[string]any

// NewFields creates a new LogFields instance.
func NewFields() LogFields {
	return make(LogFields)
}

// WithComponent adds the component field.
func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

// WithError adds the error field when err is non-nil.
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// WithOperation adds the operation field.
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithSession adds the acting user's identity fields.
func (f LogFields) WithSession(username, role string) LogFields {
	f[FieldUsername] = username
	f[FieldRole] = role
	return f
}

// WithTransaction adds ledger entry fields.
func (f LogFields) WithTransaction(id, txType string, amountCents int64) LogFields {
	f[FieldTxID] = id
	f[FieldTxType] = txType
	f[FieldAmountCents] = amountCents
	return f
}

// ToSlice converts LogFields to a slice for slog.
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
