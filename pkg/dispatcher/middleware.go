package dispatcher

import "context"

// Next is the continuation a Middleware calls to proceed to the next stage
// of the chain — the next middleware, or ultimately the terminal.
type Next func(ctx context.Context, hc *HandlerContext) (any, error)

// Middleware wraps one stage of dispatch. It must either call next exactly
// once (optionally transforming ctx or hc first) or short-circuit by
// returning its own (result, error) without calling next.
type Middleware func(ctx context.Context, hc *HandlerContext, next Next) (any, error)

// compose builds a Next that runs mws in insertion order before terminal:
// mws[0] is outermost and runs first, matching usePre's documented order.
func compose(mws []Middleware, terminal Next) Next {
	next := terminal
	for i := len(mws) - 1; i >= 0; i-- {
		mw := mws[i]
		prev := next
		next = func(ctx context.Context, hc *HandlerContext) (any, error) {
			return mw(ctx, hc, prev)
		}
	}
	return next
}

// composeReversed builds a Next that runs mws in the inverse of insertion
// order before terminal: the most recently added middleware is outermost,
// matching usePost's documented "outer-most last" order.
func composeReversed(mws []Middleware, terminal Next) Next {
	reversed := make([]Middleware, len(mws))
	for i, mw := range mws {
		reversed[len(mws)-1-i] = mw
	}
	return compose(reversed, terminal)
}
