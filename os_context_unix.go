//go:build unix

package raven

import (
	"bytes"
	"runtime"

	"golang.org/x/sys/unix"
)

func osContext() Context {
	ctx := Context{
		"name": runtime.GOOS,
	}

	var name unix.Utsname
	if err := unix.Uname(&name); err != nil {
		return ctx
	}

	ctx["version"] = cString(name.Release[:])
	ctx["kernel_version"] = cString(name.Version[:])
	return ctx
}

func deviceName() string {
	var name unix.Utsname
	if err := unix.Uname(&name); err != nil {
		return ""
	}
	return cString(name.Nodename[:])
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i != -1 {
		b = b[:i]
	}
	return string(b)
}
