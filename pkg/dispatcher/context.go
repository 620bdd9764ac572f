package dispatcher

import (
	"sync"

	"github.com/shadowmesh/netcore/pkg/connection"
	"github.com/shadowmesh/netcore/pkg/packet"
)

// HandlerContext is the pooled, per-dispatch scratch state threaded through
// the middleware chain, the terminal precondition checks, and the handler
// invocation itself. Rent with getContext; every exit path from Dispatch
// must return it with putContext.
type HandlerContext struct {
	Packet       packet.Packet
	Conn         *connection.Connection
	Descriptor   *Descriptor
	SkipOutbound bool
	Result       any
}

var contextPool = sync.Pool{
	New: func() any { return new(HandlerContext) },
}

func getContext() *HandlerContext {
	return contextPool.Get().(*HandlerContext)
}

func putContext(hc *HandlerContext) {
	*hc = HandlerContext{}
	contextPool.Put(hc)
}
