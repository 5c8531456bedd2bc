// Package memfs is the in-memory filesystem holding the kernel's
// compiled-in program images, standing in for
// original_source/kernel/src/fs/memfs.rs. It has no on-disk backing;
// everything it serves is compiled into the kernel binary.
package memfs

import "sync"

// FS is a named-blob registry: Open looks a program image up by name.
type FS interface {
	Open(name string) ([]byte, bool)
}

type memFS struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// New builds an FS pre-populated with the given name -> image map.
func New(images map[string][]byte) FS {
	data := make(map[string][]byte, len(images))
	for name, bytes := range images {
		data[name] = bytes
	}
	return &memFS{data: data}
}

func (f *memFS) Open(name string) ([]byte, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	b, ok := f.data[name]
	return b, ok
}

var (
	globalOnce sync.Once
	global     FS
)

// InitGlobal installs the process-wide memfs exactly once, mirroring the
// original's `memfs()` lazy static.
func InitGlobal(images map[string][]byte) {
	globalOnce.Do(func() {
		global = New(images)
	})
}

// Global returns the process-wide memfs installed by InitGlobal.
func Global() FS {
	if global == nil {
		panic("memfs: Global called before InitGlobal")
	}
	return global
}
