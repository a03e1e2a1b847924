package draft

import "errors"

var (
	// ErrJobNotFound and ErrShipmentNotFound mark a no-op: nothing changed.
	ErrJobNotFound      = errors.New("job not found in working set")
	ErrShipmentNotFound = errors.New("shipment not found in source")
	ErrDriverNotFound   = errors.New("driver not in active roster")
	ErrNoJobForDriver   = errors.New("driver has no draft job in working set")
	ErrJobDispatched    = errors.New("job is dispatched and read-only")
	ErrEmptySelection   = errors.New("no shipments selected")
	ErrSameJob          = errors.New("source and target job are the same")

	ErrStale       = errors.New("working set has unreconciled edits; refresh or reconcile first")
	ErrBusy        = errors.New("a backend call for this session is in flight")
	ErrClosed      = errors.New("session closed")
	ErrStaleResult = errors.New("result superseded by a newer request")

	ErrSessionNotFound = errors.New("session not found")
)

// IsNoOp reports whether err means the operation referenced an unknown id and
// left the working set untouched.
func IsNoOp(err error) bool {
	return errors.Is(err, ErrJobNotFound) || errors.Is(err, ErrShipmentNotFound) || errors.Is(err, ErrNoJobForDriver)
}
