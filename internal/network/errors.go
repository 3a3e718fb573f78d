package network

import "errors"

var (
	// ErrLinkDown is returned by a single link check when the link is not usable.
	ErrLinkDown = errors.New("network: link down")

	// ErrJoinFailed is returned when the join command fails.
	ErrJoinFailed = errors.New("network: join failed")
)
