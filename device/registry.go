package device

import (
	"sync"

	"memdev/blockdev"
	"memdev/errors"
	"memdev/logx"
	"memdev/monitoring"
)

// Registry tracks named devices and their open handles. Registration is the
// software analog of exposing a device node: once registered, any number of
// handles may be opened against the same shared store.
type Registry struct {
	mu      sync.RWMutex
	devices map[string]*registration
}

type registration struct {
	dev   *Device
	opens int
}

func NewRegistry() *Registry {
	return &Registry{devices: make(map[string]*registration)}
}

// Register creates a device over cfg and exposes it under name.
func (r *Registry) Register(name string, cfg blockdev.StoreConfig) (*Device, error) {
	store, err := blockdev.NewStore(cfg)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.devices[name]; exists {
		return nil, errors.NewError(errors.ErrCodeDeviceExists, errors.ErrMsgDeviceExists)
	}
	dev, err := NewDevice(name, store)
	if err != nil {
		return nil, err
	}
	r.devices[name] = &registration{dev: dev}
	logx.Info("DEVICE", "Registered device ", name)
	return dev, nil
}

// Lookup returns the registered device, if any.
func (r *Registry) Lookup(name string) (*Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, exists := r.devices[name]
	if !exists {
		return nil, errors.NewError(errors.ErrCodeDeviceNotFound, errors.ErrMsgDeviceNotFound)
	}
	return reg.dev, nil
}

// Open returns a handle sharing the device's store and cursor, mirroring
// open() on a device node returning the same underlying singleton.
func (r *Registry) Open(name string) (*Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, exists := r.devices[name]
	if !exists {
		return nil, errors.NewError(errors.ErrCodeDeviceNotFound, errors.ErrMsgDeviceNotFound)
	}
	reg.opens++
	monitoring.SetOpenHandles(r.totalOpensLocked())
	return &Handle{dev: reg.dev, registry: r}, nil
}

// Unregister removes a device. It refuses while handles remain open.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, exists := r.devices[name]
	if !exists {
		return errors.NewError(errors.ErrCodeDeviceNotFound, errors.ErrMsgDeviceNotFound)
	}
	if reg.opens > 0 {
		return errors.NewError(errors.ErrCodeDeviceBusy, errors.ErrMsgDeviceBusy)
	}
	delete(r.devices, name)
	logx.Info("DEVICE", "Unregistered device ", name)
	return nil
}

// Names lists registered device names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.devices))
	for name := range r.devices {
		names = append(names, name)
	}
	return names
}

func (r *Registry) totalOpensLocked() int {
	total := 0
	for _, reg := range r.devices {
		total += reg.opens
	}
	return total
}

func (r *Registry) release(dev *Device) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if reg, exists := r.devices[dev.Name()]; exists && reg.opens > 0 {
		reg.opens--
	}
	monitoring.SetOpenHandles(r.totalOpensLocked())
}

// Handle is one open reference to a registered device. All handles of a
// device share its store and cursor; Close releases the reference and makes
// the handle unusable.
type Handle struct {
	mu       sync.Mutex
	dev      *Device
	registry *Registry
	closed   bool
}

func (h *Handle) Device() (*Device, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, errors.NewError(errors.ErrCodeHandleClosed, errors.ErrMsgHandleClosed)
	}
	return h.dev, nil
}

func (h *Handle) ReadAt(p []byte, off int64) (int, error) {
	dev, err := h.Device()
	if err != nil {
		return 0, err
	}
	return dev.ReadAt(p, off)
}

func (h *Handle) WriteAt(p []byte, off int64) (int, error) {
	dev, err := h.Device()
	if err != nil {
		return 0, err
	}
	return dev.WriteAt(p, off)
}

func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return errors.NewError(errors.ErrCodeHandleClosed, errors.ErrMsgHandleClosed)
	}
	h.closed = true
	h.registry.release(h.dev)
	return nil
}
