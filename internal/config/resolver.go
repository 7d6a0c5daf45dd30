package config

import (
	"slices"
	"strings"
)

// Resolve returns the configured module IDs in load order: memory
// backends first, then the rest sorted. Backends must be provisioned
// before the bot is wired on top of them.
func Resolve(cfg *Config) []string {
	ids := make([]string, 0, len(cfg.Modules))
	for id := range cfg.Modules {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b string) int {
		am, bm := strings.HasPrefix(a, "memory."), strings.HasPrefix(b, "memory.")
		switch {
		case am && !bm:
			return -1
		case bm && !am:
			return 1
		}
		return strings.Compare(a, b)
	})
	return ids
}
