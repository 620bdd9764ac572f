package dispatcher

import (
	"context"
	"time"

	"github.com/shadowmesh/netcore/pkg/connection"
	"github.com/shadowmesh/netcore/pkg/packet"
	"github.com/shadowmesh/netcore/pkg/ratelimit"
)

// ReturnKind selects how a handler's return value is forwarded to the
// peer. It replaces attribute-scanned return-type routing with an explicit
// field set at registration time, since Go handlers carry no runtime type
// metadata to scan.
type ReturnKind int

const (
	// ReturnVoid means the handler's result is discarded; SkipOutbound is
	// set and nothing is sent.
	ReturnVoid ReturnKind = iota
	// ReturnBytes sends the handler's []byte result directly.
	ReturnBytes
	// ReturnString frames the handler's string result and sends it.
	ReturnString
	// ReturnPacket compresses then encrypts the handler's packet.Packet
	// result with the connection's secret and suite before sending.
	ReturnPacket
)

// EncryptionPolicy is a descriptor's requirement on the inbound packet's
// encrypted flag.
type EncryptionPolicy int

const (
	// EncryptionAny accepts either encrypted or plaintext inbound packets.
	EncryptionAny EncryptionPolicy = iota
	// EncryptionRequired rejects plaintext inbound packets.
	EncryptionRequired
	// EncryptionForbidden rejects encrypted inbound packets.
	EncryptionForbidden
)

// HandlerFunc is the terminal business logic for one opcode. It receives
// the already-decrypted packet body (ctx carries the descriptor's timeout,
// if any) and returns a value interpreted per the descriptor's ReturnKind,
// or an error classified into a control directive.
type HandlerFunc func(ctx context.Context, pkt packet.Packet, conn *connection.Connection) (any, error)

// Descriptor is the cached, immutable-after-registration metadata for one
// opcode: what invokes it, what it returns, and the policy the dispatcher
// enforces before invoking it.
type Descriptor struct {
	// Opcode is the wire opcode this descriptor handles.
	Opcode uint16
	// Handler is the compiled, cached thunk the dispatcher invokes.
	Handler HandlerFunc
	// ReturnKind selects how Handler's result is routed outbound.
	ReturnKind ReturnKind
	// Timeout bounds one invocation of Handler; zero means unbounded.
	Timeout time.Duration
	// Permission is the minimum PermissionLevel a connection must hold.
	Permission connection.PermissionLevel
	// Encryption is this descriptor's requirement on the inbound packet.
	Encryption EncryptionPolicy
	// RateLimit, if non-nil, is consulted via the Rate Limiter keyed by
	// the connection's normalised remote endpoint before every invocation.
	RateLimit *ratelimit.Policy
}
