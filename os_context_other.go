//go:build !unix

package raven

import (
	"os"
	"runtime"
)

func osContext() Context {
	return Context{
		"name": runtime.GOOS,
	}
}

func deviceName() string {
	name, _ := os.Hostname()
	return name
}
