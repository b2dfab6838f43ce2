package lua

import (
	"github.com/dokzlo13/lightcycle/internal/light"
	"github.com/dokzlo13/lightcycle/internal/storage/kv"
)

// DefaultQueueSize bounds the Lua work queue when RuntimeDeps.QueueSize is not set.
const DefaultQueueSize = 100

// RuntimeDeps is what the Lua modules need from the host.
type RuntimeDeps struct {
	Lights     light.Set
	Controller *light.Controller
	KVManager  *kv.Manager // nil disables the kv module
	KVBackend  kv.Backend  // default backend for script buckets
	QueueSize  int
}
