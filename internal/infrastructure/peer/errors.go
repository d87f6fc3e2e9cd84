package peer

import "fmt"

// PeerError is a non-2xx answer from the minting platform.
type PeerError struct {
	StatusCode int
	Body       string
}

func (e *PeerError) Error() string {
	return fmt.Sprintf("peer returned status %d: %s", e.StatusCode, e.Body)
}
