package raven

import (
	"runtime"
	"sync"
)

var (
	contextsOnce    sync.Once
	defaultContexts map[string]Context
)

// environmentContexts returns the os, runtime and device contexts of the
// current process. They are computed once.
func environmentContexts() map[string]Context {
	contextsOnce.Do(func() {
		defaultContexts = map[string]Context{
			"os": osContext(),
			"runtime": {
				"name":    "go",
				"version": runtime.Version(),
			},
			"device": {
				"arch":    runtime.GOARCH,
				"num_cpu": runtime.NumCPU(),
			},
		}
		if name := deviceName(); name != "" {
			defaultContexts["device"]["name"] = name
		}
	})
	return defaultContexts
}
