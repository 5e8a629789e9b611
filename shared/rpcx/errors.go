package rpcx

import (
	"errors"
	"fmt"
)

// ErrDestinationNotFound is returned before any broker I/O when a send
// targets a service that was never registered.
var ErrDestinationNotFound = errors.New("rpc destination not found")

func destinationNotFound(service string) error {
	return fmt.Errorf("%w: %s", ErrDestinationNotFound, service)
}
