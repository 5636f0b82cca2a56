package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
)

// Source attributes a proxy failure to one side of the connection.
type Source int

const (
	SourceUnset Source = iota
	SourceUpstream
	SourceDownstream
	SourceInternal
)

func (s Source) String() string {
	switch s {
	case SourceUpstream:
		return "upstream"
	case SourceDownstream:
		return "downstream"
	case SourceInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Kind describes what went wrong.
type Kind int

const (
	KindOther Kind = iota
	KindConnect
	KindRead
	KindWrite
	KindConnectionClosed
)

func (k Kind) String() string {
	switch k {
	case KindConnect:
		return "connect error"
	case KindRead:
		return "read error"
	case KindWrite:
		return "write error"
	case KindConnectionClosed:
		return "connection closed"
	default:
		return "error"
	}
}

// Failure is an error raised while proxying a routed request.
type Failure struct {
	Source Source
	Kind   Kind
	Err    error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s %s: %v", f.Source, f.Kind, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// StatusError attaches an explicit response code to an error. It takes
// precedence over any attribution.
type StatusError struct {
	Code int
	Err  error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%d %s: %v", e.Code, http.StatusText(e.Code), e.Err)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// StatusCode maps a proxy failure to the response code sent downstream.
// Zero means no response must be attempted because the downstream
// connection is already gone.
//
//   - explicit StatusError code
//   - upstream failures: 502
//   - downstream read/write/closed: 0
//   - other downstream failures: 400
//   - internal or unattributed: 500
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}

	var f *Failure
	if !errors.As(err, &f) {
		return http.StatusInternalServerError
	}

	switch f.Source {
	case SourceUpstream:
		return http.StatusBadGateway
	case SourceDownstream:
		switch f.Kind {
		case KindRead, KindWrite, KindConnectionClosed:
			return 0
		default:
			return http.StatusBadRequest
		}
	default:
		return http.StatusInternalServerError
	}
}

// isConnectionLoss reports whether err means the peer is gone.
func isConnectionLoss(err error) bool {
	return errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, context.Canceled)
}

// upstreamFailure attributes an error returned by the upstream round trip.
// req is the outbound request; its context ends when the client goes away.
func upstreamFailure(req *http.Request, err error) error {
	var f *Failure
	if errors.As(err, &f) {
		return err
	}
	if req.Context().Err() != nil {
		return &Failure{Source: SourceDownstream, Kind: KindConnectionClosed, Err: err}
	}

	var opErr *net.OpError
	switch {
	case errors.As(err, &opErr) && opErr.Op == "dial":
		return &Failure{Source: SourceUpstream, Kind: KindConnect, Err: err}
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return &Failure{Source: SourceUpstream, Kind: KindConnectionClosed, Err: err}
	case errors.As(err, &opErr) && opErr.Op == "write":
		return &Failure{Source: SourceUpstream, Kind: KindWrite, Err: err}
	default:
		return &Failure{Source: SourceUpstream, Kind: KindRead, Err: err}
	}
}

// downstreamBody tags errors from reading the client's request body so they
// are not mistaken for upstream failures.
type downstreamBody struct {
	io.ReadCloser
}

func (b downstreamBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	if err == nil || err == io.EOF {
		return n, err
	}
	kind := KindOther
	if isConnectionLoss(err) {
		kind = KindConnectionClosed
	}
	return n, &Failure{Source: SourceDownstream, Kind: kind, Err: err}
}
