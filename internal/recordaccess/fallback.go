package recordaccess

import (
	"fmt"

	"provenance/internal/api"
	"provenance/internal/ipc"
)

// Session represents a record access handle and its cleanup function.
type Session struct {
	Access Access
	// Direct reports whether the session bypasses the daemon.
	Direct bool
	close  func() error
}

// Close releases resources associated with the session.
func (s Session) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// DirectOpener builds an in-process record service and the function that
// releases its backends.
type DirectOpener func() (*api.RecordService, func() error, error)

// OpenWithFallback tries IPC-backed access first, then falls back to an
// in-process record service.
func OpenWithFallback(dial func() (*ipc.Client, error), openDirect DirectOpener) (Session, error) {
	var dialErr error
	if dial != nil {
		client, err := dial()
		if err == nil {
			return Session{
				Access: NewIPCAccess(client),
				close:  client.Close,
			}, nil
		}
		dialErr = err
	}

	if openDirect == nil {
		if dialErr != nil {
			return Session{}, dialErr
		}
		return Session{}, fmt.Errorf("open registry: no direct opener configured")
	}
	service, closeFn, err := openDirect()
	if err != nil {
		return Session{}, fmt.Errorf("open registry: %w", err)
	}
	return Session{
		Access: NewServiceAccess(service),
		Direct: true,
		close:  closeFn,
	}, nil
}
