package core

import (
	"cmp"
	"fmt"
	"slices"
	"sync"
)

// registry holds every module compiled into the binary. Modules add
// themselves from init(), so the set is fixed before main runs.
type registry struct {
	mu   sync.RWMutex
	byID map[ModuleID]ModuleInfo
}

var modules = &registry{byID: make(map[ModuleID]ModuleInfo)}

// RegisterModule records the module's ModuleInfo. It panics on an empty
// ID, a nil constructor or a duplicate ID, since all of those are
// programming errors surfaced at init time.
func RegisterModule(instance Module) {
	info := instance.ModuleInfo()
	switch {
	case info.ID == "":
		panic("core: module ID must not be empty")
	case info.New == nil:
		panic(fmt.Sprintf("core: module %s has no constructor", info.ID))
	}

	modules.mu.Lock()
	defer modules.mu.Unlock()
	if _, dup := modules.byID[info.ID]; dup {
		panic(fmt.Sprintf("core: module %s registered twice", info.ID))
	}
	modules.byID[info.ID] = info
}

// GetModule returns the ModuleInfo registered under id.
func GetModule(id string) (ModuleInfo, bool) {
	modules.mu.RLock()
	defer modules.mu.RUnlock()
	info, ok := modules.byID[ModuleID(id)]
	return info, ok
}

// GetModules returns every registered module sorted by ID.
func GetModules() []ModuleInfo {
	return modules.list(func(ModuleID) bool { return true })
}

// ModulesIn returns the modules of one namespace sorted by ID, e.g. all
// "memory" backends.
func ModulesIn(namespace string) []ModuleInfo {
	return modules.list(func(id ModuleID) bool { return id.Namespace() == namespace })
}

func (r *registry) list(keep func(ModuleID) bool) []ModuleInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ModuleInfo, 0, len(r.byID))
	for id, info := range r.byID {
		if keep(id) {
			out = append(out, info)
		}
	}
	slices.SortFunc(out, func(a, b ModuleInfo) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// resetRegistry clears the registry. Only for testing.
func resetRegistry() {
	modules.mu.Lock()
	defer modules.mu.Unlock()
	modules.byID = make(map[ModuleID]ModuleInfo)
}
