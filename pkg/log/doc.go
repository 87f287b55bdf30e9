// Package log provides the named loggers used across formquery.
//
// Each component asks for its own logger once and keeps it:
//
//	l := log.ForService("repository")
//	l.Infof("opened %s", path)
//	l.Debugf("compiled: %s", sql) // only when debug is on for "repository"
//
// Lines are written through zerolog, as JSON by default or through the console
// writer when Options.Pretty is set, and always carry a "service" field with
// the logger name. Extra structured fields are attached with With:
//
//	log.ForService("api").With("path", r.URL.Path).Infof("served")
//
// Debug output can be enabled globally (SetGlobalDebug) or for a single
// service (EnableDebugFor / DisableDebugFor). Configure sets the minimum level
// for the other levels.
//
// Tests redirect output with SetOutput(&bytes.Buffer{}) and assert on the
// JSON lines. All exported functions are safe for concurrent use.
package log
