package adapter

import "fmt"

// The error taxonomy is matched with errors.As, never by message text.
// MappingError lives in pkg/entity next to the name resolution that
// raises it; the three below are the adapter's own.

// QueryExecutionError reports that the driver rejected rendered SQL:
// syntax, constraint violation, type mismatch. The driver error is
// carried unchanged so callers can inspect engine-specific detail
// (e.g. a unique-constraint code) for business decisions.
type QueryExecutionError struct {
	SQL string
	Err error
}

func (e *QueryExecutionError) Error() string {
	return fmt.Sprintf("executing %q: %v", e.SQL, e.Err)
}

func (e *QueryExecutionError) Unwrap() error { return e.Err }

// ConnectionError reports a connect or close failure.
type ConnectionError struct {
	Driver string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection (%s): %v", e.Driver, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// TransactionError reports a transaction-control failure: commit or
// rollback outside any active transaction, or an engine error on
// BEGIN/COMMIT/ROLLBACK itself. Errors returned by a Transaction
// callback are never wrapped in this type; they pass through with
// their identity intact.
type TransactionError struct {
	Op  string // "begin", "commit" or "rollback"
	Err error
}

func (e *TransactionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("transaction %s: no active transaction", e.Op)
	}
	return fmt.Sprintf("transaction %s: %v", e.Op, e.Err)
}

func (e *TransactionError) Unwrap() error { return e.Err }

func execErr(sql string, err error) error {
	if err == nil {
		return nil
	}
	return &QueryExecutionError{SQL: sql, Err: err}
}
