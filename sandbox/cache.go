package sandbox

import (
	"sync"

	"github.com/dop251/goja"
)

// programCache keeps one compiled program per URI, keyed by the snapshot
// revision that produced it. Compiled programs are immutable and safe to
// share across VMs, so invocations of an unchanged handler skip the compile
// step. Purely an optimization; a miss just recompiles.
type programCache struct {
	mu      sync.Mutex
	entries map[string]cachedProgram
}

type cachedProgram struct {
	revision int64
	program  *goja.Program
}

func newProgramCache() *programCache {
	return &programCache{entries: make(map[string]cachedProgram)}
}

func (c *programCache) get(uri string, revision int64) (*goja.Program, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[uri]
	if !ok || entry.revision != revision {
		return nil, false
	}
	return entry.program, true
}

func (c *programCache) put(uri string, revision int64, program *goja.Program) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[uri] = cachedProgram{revision: revision, program: program}
}
