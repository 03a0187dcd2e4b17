package errors

import goerrors "errors"

// Disposition is what the consumer framework (internal/broker) should do
// with a handler's returned error.
type Disposition int

const (
	// DispositionRetry republishes the message onto the paired *.retry
	// queue, which holds it for the fixed broker.BackoffCap before
	// dead-lettering it back to the primary queue; the delay does not grow
	// between attempts.
	DispositionRetry Disposition = iota
	// DispositionTerminal nacks the message without requeue, so the queue
	// dead-letters it to its DLQ; no retry. The consumer framework opens no
	// exception case for it.
	DispositionTerminal
	// DispositionTreatAsSuccess acks the message without further action —
	// the work it describes already happened (idempotency replay).
	DispositionTreatAsSuccess
	// DispositionDrop acks the message silently; the aggregate has already
	// moved past the state this message assumes.
	DispositionDrop
	// DispositionHalt marks an integrity failure. The consumer framework
	// dead-letters the message to the DLQ exactly as for
	// DispositionTerminal; it does not stop other messages of the same
	// aggregate and opens no exception case.
	DispositionHalt
	// DispositionFailFast is only produced at startup; the process exits.
	DispositionFailFast
)

// Classify maps an error produced by a handler to the retry policy of
// spec §7. nil classifies as DispositionTreatAsSuccess (no error at all).
func Classify(err error) Disposition {
	if err == nil {
		return DispositionTreatAsSuccess
	}

	var (
		transientErr  TransientIOError
		validationErr ValidationError
		businessErr   BusinessRejectionError
		conflictErr   ConflictError
		orderingErr   OrderingError
		integrityErr  IntegrityError
		configErr     ConfigError
	)

	switch {
	case goerrors.As(err, &transientErr):
		return DispositionRetry
	case goerrors.As(err, &validationErr), goerrors.As(err, &businessErr):
		return DispositionTerminal
	case goerrors.As(err, &conflictErr):
		return DispositionTreatAsSuccess
	case goerrors.As(err, &orderingErr):
		return DispositionDrop
	case goerrors.As(err, &integrityErr):
		return DispositionHalt
	case goerrors.As(err, &configErr):
		return DispositionFailFast
	default:
		// Unclassified errors from I/O or library calls are the most
		// common shape in practice; treat conservatively as retryable
		// so a genuine transient failure isn't silently dropped.
		return DispositionRetry
	}
}
