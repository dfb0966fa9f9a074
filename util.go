package raven

import (
	"encoding/hex"
	"runtime/debug"
	"sync"

	"github.com/google/uuid"
)

// The identifier of the SDK.
const sdkIdentifier = "raven-go"

// The module path of the SDK. Stack frames from within it are not reported.
const sdkModule = "github.com/ravenclient/raven-go"

// SDKVersion is the version of the SDK.
const SDKVersion = "0.4.0"

// userAgent is sent with every request and as the sentry_client value.
const userAgent = sdkIdentifier + "/" + SDKVersion

// newEventID returns a random 32 character hex identifier.
func newEventID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}

var (
	modulesOnce sync.Once
	modules     map[string]string
)

// loadedModules returns the main module and its dependencies with their
// versions, as recorded in the binary's build info.
func loadedModules() map[string]string {
	modulesOnce.Do(func() {
		modules = make(map[string]string)
		info, ok := debug.ReadBuildInfo()
		if !ok {
			return
		}
		if info.Main.Path != "" {
			modules[info.Main.Path] = info.Main.Version
		}
		for _, dep := range info.Deps {
			if dep.Replace != nil {
				modules[dep.Path] = dep.Replace.Version
				continue
			}
			modules[dep.Path] = dep.Version
		}
	})
	return modules
}
