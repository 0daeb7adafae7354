// Package remote re-exports the sync engine's RemoteBackend contract so
// reference implementations (internal/remote/filestore) and callers that
// only need the interface don't have to import internal/sync for it.
package remote

import "github.com/tchayen/oru/internal/sync"

// Backend is the opaque push/pull contract spec.md section 4.I defines.
type Backend = sync.RemoteBackend
