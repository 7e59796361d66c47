// Package neterr classifies errors raised while talking to the Ethereum node or the
// transaction relay. Network-class errors leave a wallet workflow resumable; everything
// else is terminal for the current step.
package neterr

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"syscall"

	"github.com/ethereum/go-ethereum/rpc"
)

// Kind is the class of a network failure.
type Kind int

const (
	// KindClient is a request rejected by the remote service (4xx).
	KindClient Kind = iota + 1
	// KindServer is a failure on the remote service (5xx).
	KindServer
	// KindTransport is a failure to reach the remote service at all.
	KindTransport
)

func (k Kind) String() string {
	switch k {
	case KindClient:
		return "client"
	case KindServer:
		return "server"
	case KindTransport:
		return "transport"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Error is a network-class error.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	}

	return fmt.Sprintf("%s: %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Client wraps err as a client error raised by op.
func Client(op string, err error) error { return &Error{Kind: KindClient, Op: op, Err: err} }

// Server wraps err as a server error raised by op.
func Server(op string, err error) error { return &Error{Kind: KindServer, Op: op, Err: err} }

// Transport wraps err as a transport error raised by op.
func Transport(op string, err error) error { return &Error{Kind: KindTransport, Op: op, Err: err} }

// FromStatusCode wraps err according to an HTTP status code. Codes outside the 4xx and 5xx
// ranges are returned unchanged.
func FromStatusCode(op string, status int, err error) error {
	switch {
	case status >= 400 && status < 500:
		return Client(op, err)
	case status >= 500 && status < 600:
		return Server(op, err)
	default:
		return err
	}
}

// Classify wraps err into an *Error when it originates from the transport layer or from an
// HTTP status returned by the go-ethereum RPC client. Other errors are returned unchanged.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var nerr *Error
	if errors.As(err, &nerr) {
		return err
	}

	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		return FromStatusCode(op, httpErr.StatusCode, err)
	}

	if isTransport(err) {
		return Transport(op, err)
	}

	return err
}

// Is reports whether err is a network-class error.
func Is(err error) bool {
	if err == nil {
		return false
	}

	var nerr *Error
	if errors.As(err, &nerr) {
		return true
	}

	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode >= 400
	}

	return isTransport(err)
}

// KindOf returns the kind of a network-class error, or 0 when err is not one.
func KindOf(err error) Kind {
	var nerr *Error
	if errors.As(Classify("", err), &nerr) {
		return nerr.Kind
	}

	return 0
}

func isTransport(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}

	return errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET)
}
