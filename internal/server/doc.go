// Package server exposes a directory cache over HTTP using Fiber. It attaches
// a request-id middleware, maps /kv/* onto Get/Has/Set/Delete and DELETE /kv
// onto Clear, and leaves /-/ diagnostics to the routes sub-package. The store
// is injected so tests and the CLI share the same construction path.
package server
