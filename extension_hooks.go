package relay

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// CommandQueryBundleFactory builds a host-defined handler bundle around
// the relay service, typically to register extra commands or queries
// next to the built-in ones.
type CommandQueryBundleFactory func(service CommandQueryService) (any, error)

// ExtensionHooks is the registration surface host applications use to
// attach handler bundles before the service is composed. Registration
// is write-once per name.
type ExtensionHooks struct {
	mu      sync.RWMutex
	bundles map[string]CommandQueryBundleFactory
}

func NewExtensionHooks() *ExtensionHooks {
	return &ExtensionHooks{
		bundles: map[string]CommandQueryBundleFactory{},
	}
}

func (h *ExtensionHooks) RegisterCommandQueryBundle(
	name string,
	factory CommandQueryBundleFactory,
) error {
	if h == nil {
		return fmt.Errorf("relay: extension hooks are nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("relay: command/query bundle name is required")
	}
	if factory == nil {
		return fmt.Errorf("relay: command/query bundle %q factory is required", name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.bundles[name]; exists {
		return fmt.Errorf("relay: command/query bundle %q already registered", name)
	}
	h.bundles[name] = factory
	return nil
}

// BuildCommandQueryBundles runs every registered factory against the
// service, in name order, and returns the bundles keyed by name.
func (h *ExtensionHooks) BuildCommandQueryBundles(
	service CommandQueryService,
) (map[string]any, error) {
	if h == nil {
		return map[string]any{}, nil
	}
	if service == nil {
		return nil, fmt.Errorf("relay: command/query service is required")
	}

	h.mu.RLock()
	names := make([]string, 0, len(h.bundles))
	for name := range h.bundles {
		names = append(names, name)
	}
	sort.Strings(names)
	factories := make(map[string]CommandQueryBundleFactory, len(h.bundles))
	for name, factory := range h.bundles {
		factories[name] = factory
	}
	h.mu.RUnlock()

	result := make(map[string]any, len(names))
	for _, name := range names {
		bundle, err := factories[name](service)
		if err != nil {
			return nil, err
		}
		result[name] = bundle
	}
	return result, nil
}

func (h *ExtensionHooks) BundleNames() []string {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.bundles))
	for name := range h.bundles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
