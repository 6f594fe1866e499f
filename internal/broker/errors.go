package broker

import "errors"

var (
	// ErrNothingToServe is returned by Run when every driver has been
	// retired and no control channel can start new ones.
	ErrNothingToServe = errors.New("broker: no drivers left to serve")

	// ErrBadRemoteSpec is returned for malformed [device]@host[:port] names.
	ErrBadRemoteSpec = errors.New("broker: bad remote driver spec")

	// ErrStopped is returned by requests made after Run has exited.
	ErrStopped = errors.New("broker: stopped")

	// ErrDriverNotFound is returned when a stop names no running driver.
	ErrDriverNotFound = errors.New("broker: driver not found")
)
