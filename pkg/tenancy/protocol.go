package tenancy

import (
	"net/http"
	"strings"
)

// grpcContentTypePrefix identifies gRPC requests (application/grpc,
// application/grpc+proto, application/grpc-web, ...).
const grpcContentTypePrefix = "application/grpc"

// Protocol is the upstream protocol a request is forwarded with.
type Protocol int

const (
	// ProtocolHTTP forwards over HTTP/1.1 cleartext.
	ProtocolHTTP Protocol = iota
	// ProtocolGRPC forwards over HTTP/2 cleartext (h2c).
	ProtocolGRPC
)

func (p Protocol) String() string {
	switch p {
	case ProtocolHTTP:
		return "http"
	case ProtocolGRPC:
		return "grpc"
	default:
		return "unknown"
	}
}

// ClassifyProtocol returns ProtocolGRPC when the request arrived over HTTP/2
// and its Content-Type starts with application/grpc (case-insensitive).
// Every other request, including gRPC content types over HTTP/1.x, is
// ProtocolHTTP.
func ClassifyProtocol(r *http.Request) Protocol {
	if r.ProtoMajor != 2 {
		return ProtocolHTTP
	}
	ct := r.Header.Get("Content-Type")
	if len(ct) < len(grpcContentTypePrefix) {
		return ProtocolHTTP
	}
	if strings.EqualFold(ct[:len(grpcContentTypePrefix)], grpcContentTypePrefix) {
		return ProtocolGRPC
	}
	return ProtocolHTTP
}
