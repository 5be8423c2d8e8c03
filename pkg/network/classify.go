package network

import (
	"context"
	"errors"
	"syscall"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// notConnectedErrnos are the socket errors that mean the host has no route
// to the network at all, as opposed to the peer refusing or timing out.
var notConnectedErrnos = []syscall.Errno{
	syscall.ENETUNREACH,
	syscall.ENETDOWN,
	syscall.EHOSTUNREACH,
}

// resolve classifies a transport error that carried no HTTP status.
func resolve(err error) *Error {
	switch {
	case errors.Is(err, context.Canceled):
		return &Error{Kind: KindCancelled, Err: err}
	case isNotConnected(err):
		return &Error{Kind: KindNotConnected, Err: err}
	}

	if st, ok := status.FromError(err); ok && st.Code() == codes.Canceled {
		return &Error{Kind: KindCancelled, Err: err}
	}

	return &Error{Kind: KindGeneric, Err: err}
}

func isNotConnected(err error) bool {
	if errors.Is(err, ErrNotConnected) {
		return true
	}
	for _, errno := range notConnectedErrnos {
		if errors.Is(err, errno) {
			return true
		}
	}
	return false
}
