// Package ready lets a caller wait until long running components have opened their sockets.
package ready

import (
	"context"
	"sync"
)

type keyType int

const wgKey = keyType(0)

func fromContext(ctx context.Context) (*sync.WaitGroup, bool) {
	wg, ok := ctx.Value(wgKey).(*sync.WaitGroup)
	return wg, ok
}

// WithWaitGroup attaches wg to ctx.  Every component started with the returned context that calls
// SignalReady must be accounted for with wg.Add beforehand.
func WithWaitGroup(ctx context.Context, wg *sync.WaitGroup) context.Context {
	return context.WithValue(ctx, wgKey, wg)
}

// SignalReady calls wg.Done if there is a *sync.WaitGroup attached to ctx.  A component calls it at most
// once, after it is able to serve.
func SignalReady(ctx context.Context) {
	if wg, ok := fromContext(ctx); ok {
		wg.Done()
	}
}
