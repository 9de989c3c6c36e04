package util

import (
	"runtime/debug"

	"github.com/ordbridge/teleburnd/internal/logging"
)

// SafeGo runs fn on a new goroutine with panic recovery. The name shows up
// in the recovery log so background tasks can be told apart.
//
// Example:
//
//	util.SafeGo("endpoint-probe", func() {
//	    // goroutine code here
//	})
func SafeGo(name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				stack := debug.Stack()
				logging.Error("goroutine panic recovered",
					"goroutine", name,
					"panic", r,
					"stack", string(stack),
				)
			}
		}()
		fn()
	}()
}
