package log

// Package log provides a very small opinionated wrapper around Go's standard
// library logging facilities. Its goal is to offer a consistent way to emit
// logs per bridge component (dispatcher, supervisor, facade) while keeping
// the call sites to one line.
//
// Key Features
//
//   - Per-component loggers via ForService(name)
//   - Automatic prefix in every line: `[name]`  (example: `[dispatcher] client connected`)
//   - Convenience level helpers: Infof, Warnf, Errorf, Debugf
//   - Debug logging can be enabled globally (SetGlobalDebug) or per component
//     (EnableDebugFor / DisableDebugFor)
//   - Uses the standard library *log.Logger* under the hood
//   - Central output writer (SetOutput, stderr by default), which can be
//     pointed at a gzip-rotating file (RotatingFile); browserbridge serve
//     leaves it on stderr
//
// Non‑Goals
//
//   - Full-featured leveled logging framework
//   - Structured / JSON logging
//   - Asynchronous/buffered logging
//
// Basic Usage
//
//	import "github.com/localbridge/browserbridge/pkg/log"
//
//	func main() {
//		log.SetGlobalDebug(true)
//		d := log.ForService("dispatcher")
//		d.Infof("listening on %s", addr)
//		d.Debugf("client table: %v", clients) // printed because global debug enabled
//	}
//
// Selective Debug
//
//	log.EnableDebugFor("supervisor")
//	log.ForService("supervisor").Debugf("visible")
//	log.ForService("dispatcher").Debugf("NOT visible")
//
// Output Routing
//
//	rf, _ := log.NewRotatingFile("/var/log/browserbridge.log", 10<<20, 3)
//	log.SetOutput(rf)
//
// Thread Safety
//
// All exported functions are safe for concurrent use. Internally the package
// relies on sync.Map and atomic primitives for minimal locking.
//
// Testing
//
// Tests can redirect output by calling SetOutput with a bytes.Buffer,
// enabling assertions on log contents.
//
