// Package groutine starts named goroutines. The name is attached as a pprof
// label, so a goroutine dump of a stuck engine shows which timer or teardown
// path each goroutine belongs to.
package groutine

import (
	"context"
	"runtime/pprof"
)

// Go runs fn on a new goroutine labeled with name.
func Go(name string, fn func()) {
	labels := pprof.Labels("goroutine_name", name)
	go pprof.Do(context.Background(), labels, func(context.Context) {
		fn()
	})
}
