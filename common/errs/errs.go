package errs

// ErrorKind identifies a kind of internal error.
// fully support for errors.Is and errors.As.
type ErrorKind string

const (
	// NotFound is returned when a requested record is not found.
	NotFound = ErrorKind("not found")

	// InvalidArgument is returned when an operation is rejected because of
	// missing or malformed input, before any state is written.
	InvalidArgument = ErrorKind("invalid argument")

	// Conflict is returned when a mutation is rejected because another
	// mutation of the same record is still awaiting blockchain confirmation.
	Conflict = ErrorKind("conflict")

	// AlreadyExists is returned on duplicate idempotency keys, e.g. an
	// acquisition transaction hash that was already recorded. Callers treat
	// it as a successful no-op.
	AlreadyExists = ErrorKind("already exists")

	// Unavailable marks transient blockchain reader failures. The poller
	// retries them on the next tick and never converts them into a
	// permanent failure.
	Unavailable = ErrorKind("unavailable")

	// DecodeFailure marks a mined transaction whose events could not be
	// decoded. Permanent for that transaction.
	DecodeFailure = ErrorKind("decode failure")

	// Unsupported is returned for unknown modules, networks or flags.
	Unsupported = ErrorKind("unsupported")

	InternalError = ErrorKind("internal error")
	Timeout       = ErrorKind("timeout")
)

// Error satisfies the error interface and prints human-readable errors.
func (e ErrorKind) Error() string {
	return string(e)
}
