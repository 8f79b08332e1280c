package ops

import (
	"sort"
	"sync"

	"github.com/born-ml/convcore/internal/tensor"
)

// Workspace holds the named tensors operators read and write.
type Workspace struct {
	mu      sync.RWMutex
	tensors map[string]*tensor.Tensor
}

// NewWorkspace creates an empty workspace.
func NewWorkspace() *Workspace {
	return &Workspace{tensors: make(map[string]*tensor.Tensor)}
}

// Put stores t under name, replacing any previous tensor, and names t.
func (ws *Workspace) Put(name string, t *tensor.Tensor) {
	t.SetName(name)
	ws.mu.Lock()
	defer ws.mu.Unlock()
	ws.tensors[name] = t
}

// Get returns the tensor stored under name.
func (ws *Workspace) Get(name string) (*tensor.Tensor, bool) {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	t, ok := ws.tensors[name]
	return t, ok
}

// GetOrCreate returns the tensor under name, creating an empty one first.
func (ws *Workspace) GetOrCreate(name string, dtype tensor.DataType, device tensor.Device) *tensor.Tensor {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if t, ok := ws.tensors[name]; ok {
		return t
	}
	t := tensor.Empty(dtype, device)
	t.SetName(name)
	ws.tensors[name] = t
	return t
}

// Names returns the stored names in sorted order.
func (ws *Workspace) Names() []string {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	names := make([]string, 0, len(ws.tensors))
	for n := range ws.tensors {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
