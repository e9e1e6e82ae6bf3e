// Package network supplies marker datagrams to the tracker: from a live UDP
// socket, from a synthetic moving rig, or from a packet capture.
package network

import (
	"context"
)

// Source yields raw marker datagrams one at a time.
//
// Next blocks until a datagram is copied into buf and returns its length.
// It returns ctx.Err() when ctx ends, net.ErrClosed after Close, io.EOF
// when a finite source is exhausted, and any other error when the source has
// failed for good.
type Source interface {
	Next(ctx context.Context, buf []byte) (int, error)
	Close() error
}
