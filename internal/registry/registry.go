// Package registry exposes DeviceArray to a host environment as a set of
// named classes, one per supported element type.
package registry

import (
	"errors"
	"sort"
	"sync"

	"github.com/fxnlabs/gpuarray/internal/array"
	"github.com/fxnlabs/gpuarray/internal/gpu"
	"go.uber.org/zap"
)

var errNilRuntime = errors.New("module runtime must not be nil")

type registerFunc func(rt gpu.Runtime, opts []array.Option) *Class

// elementTypes is the registration table: one entry per supported element
// type, in format-tag order.
var elementTypes = []registerFunc{
	newClass[bool],
	newClass[int8],
	newClass[uint8],
	newClass[int16],
	newClass[uint16],
	newClass[int32],
	newClass[uint32],
	newClass[int64],
	newClass[uint64],
	newClass[float32],
	newClass[float64],
	newClass[complex64],
	newClass[complex128],
}

// Module is a named collection of DeviceArray classes sharing one runtime.
type Module struct {
	name   string
	rt     gpu.Runtime
	logger *zap.Logger

	mu      sync.RWMutex
	classes map[string]*Class
	labels  map[string]*Class
}

// NewModule registers a class for every supported element type.
func NewModule(name string, rt gpu.Runtime, logger *zap.Logger) (*Module, error) {
	if rt == nil {
		return nil, errNilRuntime
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Module{
		name:    name,
		rt:      rt,
		logger:  logger.Named("registry"),
		classes: make(map[string]*Class, len(elementTypes)),
		labels:  make(map[string]*Class, len(elementTypes)),
	}

	opts := []array.Option{array.WithLogger(logger.Named("array"))}
	for _, register := range elementTypes {
		m.add(register(rt, opts))
	}
	m.logger.Info("Module registered",
		zap.String("module", name),
		zap.Int("classes", len(m.classes)),
		zap.String("runtime", rt.Name()))
	return m, nil
}

func (m *Module) add(c *Class) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.classes[c.Name()] = c
	m.labels[c.Label()] = c
	m.logger.Debug("Class registered", zap.Stringer("class", c))
}

// Name returns the module name.
func (m *Module) Name() string { return m.name }

// Runtime returns the runtime every class allocates on.
func (m *Module) Runtime() gpu.Runtime { return m.rt }

// Class looks up a class by its exposed name, e.g. DeviceArray_float64.
func (m *Module) Class(name string) (*Class, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.classes[name]
	return c, ok
}

// ClassFor looks up a class by element type label, e.g. float64.
func (m *Module) ClassFor(label string) (*Class, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.labels[label]
	return c, ok
}

// Classes returns every registered class, sorted by name.
func (m *Module) Classes() []*Class {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Class, 0, len(m.classes))
	for _, c := range m.classes {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}
