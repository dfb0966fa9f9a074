package raven

import (
	"go/build"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"sync"
)

const unknown string = "unknown"

// The maximum number of frames collected for a single stack trace.
const maxFrames = 100

// Stacktrace holds information about the frames of the stack.
type Stacktrace struct {
	Frames []Frame `json:"frames,omitempty"`
}

// NewStacktrace creates a stacktrace of the calling goroutine. Frames that
// belong to this SDK are left out.
func NewStacktrace() *Stacktrace {
	pcs := make([]uintptr, maxFrames)
	n := runtime.Callers(1, pcs)

	if n == 0 {
		return nil
	}

	frames := extractFrames(pcs[:n])
	frames = filterFrames(frames)

	return &Stacktrace{Frames: frames}
}

// ExtractStacktrace returns the stack trace recorded by err, if any. Errors
// created by github.com/pkg/errors, github.com/pingcap/errors and
// github.com/go-errors/errors carry one.
func ExtractStacktrace(err error) *Stacktrace {
	method := extractReflectedStacktraceMethod(err)
	if !method.IsValid() {
		return nil
	}

	pcs := extractPcs(method)
	if len(pcs) == 0 {
		return nil
	}

	frames := extractFrames(pcs)
	frames = filterFrames(frames)

	return &Stacktrace{Frames: frames}
}

func extractReflectedStacktraceMethod(err error) reflect.Value {
	if err == nil {
		return reflect.Value{}
	}
	value := reflect.ValueOf(err)

	// https://github.com/pkg/errors and https://github.com/pingcap/errors
	if method := value.MethodByName("StackTrace"); method.IsValid() && method.Type().NumIn() == 0 {
		return method
	}

	// https://github.com/go-errors/errors
	if method := value.MethodByName("StackFrames"); method.IsValid() && method.Type().NumIn() == 0 {
		return method
	}

	return reflect.Value{}
}

func extractPcs(method reflect.Value) []uintptr {
	var pcs []uintptr

	out := method.Call(nil)
	if len(out) == 0 {
		return nil
	}
	stacktrace := out[0]
	if stacktrace.Kind() != reflect.Slice {
		return nil
	}

	for i := 0; i < stacktrace.Len(); i++ {
		pc := stacktrace.Index(i)

		switch pc.Kind() {
		case reflect.Uintptr:
			pcs = append(pcs, uintptr(pc.Uint()))
		case reflect.Struct:
			field := pc.FieldByName("ProgramCounter")
			if field.IsValid() && field.Kind() == reflect.Uintptr {
				pcs = append(pcs, uintptr(field.Uint()))
			}
		}
	}

	return pcs
}

// Frame represents a function call and it's metadata. Frames are associated
// with a Stacktrace.
type Frame struct {
	Function string `json:"function,omitempty"`
	Module   string `json:"module,omitempty"`
	Filename string `json:"filename,omitempty"`
	AbsPath  string `json:"abs_path,omitempty"`
	Lineno   int    `json:"lineno,omitempty"`
	InApp    bool   `json:"in_app"`
}

// NewFrame assembles a stacktrace frame out of runtime.Frame.
func NewFrame(f runtime.Frame) Frame {
	function := f.Function
	if function == "" {
		function = unknown
	}
	abspath := f.File
	if abspath == "" {
		abspath = unknown
	}

	frame := Frame{
		AbsPath:  abspath,
		Filename: trimSourcePath(abspath),
		Lineno:   f.Line,
	}
	frame.Module, frame.Function = splitQualifiedFunctionName(function)
	frame.InApp = isInAppFrame(frame)

	return frame
}

// extractFrames converts program counters into frames ordered from the
// outermost call to the innermost one.
func extractFrames(pcs []uintptr) []Frame {
	var frames []Frame
	callersFrames := runtime.CallersFrames(pcs)

	for {
		callerFrame, more := callersFrames.Next()
		frames = append(frames, NewFrame(callerFrame))
		if !more {
			break
		}
	}

	for i, j := 0, len(frames)-1; i < j; i, j = i+1, j-1 {
		frames[i], frames[j] = frames[j], frames[i]
	}

	return frames
}

// filterFrames drops frames of the Go runtime, the testing package and of
// this SDK. Frames of external test packages are kept.
func filterFrames(frames []Frame) []Frame {
	filtered := make([]Frame, 0, len(frames))
	for _, frame := range frames {
		if shouldSkipFrame(frame.Module) {
			continue
		}
		filtered = append(filtered, frame)
	}
	return filtered
}

func shouldSkipFrame(module string) bool {
	if module == "runtime" || module == "testing" {
		return true
	}
	if strings.HasPrefix(module, sdkModule) && !strings.HasSuffix(module, "_test") {
		return true
	}
	return false
}

var (
	sourcePathsOnce sync.Once
	sourcePaths     []string
)

func possibleSourcePaths() []string {
	sourcePathsOnce.Do(func() {
		for _, path := range build.Default.SrcDirs() {
			if path == "" {
				continue
			}
			if path[len(path)-1] != filepath.Separator {
				path += string(filepath.Separator)
			}
			sourcePaths = append(sourcePaths, path)
		}
	})
	return sourcePaths
}

func trimSourcePath(path string) string {
	if i := strings.Index(path, "/pkg/mod/"); i != -1 {
		return path[i+len("/pkg/mod/"):]
	}
	for _, prefix := range possibleSourcePaths() {
		if trimmed := strings.TrimPrefix(path, prefix); len(trimmed) < len(path) {
			return trimmed
		}
	}
	return path
}

func isInAppFrame(frame Frame) bool {
	if goroot := build.Default.GOROOT; goroot != "" && strings.HasPrefix(frame.AbsPath, goroot) {
		return false
	}
	if strings.Contains(frame.AbsPath, "/pkg/mod/") ||
		strings.Contains(frame.Module, "vendor") ||
		strings.Contains(frame.Module, "third_party") {
		return false
	}
	return true
}

// splitQualifiedFunctionName splits a package path-qualified function name
// into package name and function name. Such qualified names are found in
// runtime.Frame.Function values.
func splitQualifiedFunctionName(name string) (pkg string, fun string) {
	pkg = packageName(name)
	if len(pkg) > 0 {
		fun = name[len(pkg)+1:]
	} else {
		fun = name
	}
	return
}

func packageName(name string) string {
	pathend := strings.LastIndex(name, "/")
	if pathend < 0 {
		pathend = 0
	}
	if i := strings.Index(name[pathend:], "."); i != -1 {
		return name[:pathend+i]
	}
	return ""
}
