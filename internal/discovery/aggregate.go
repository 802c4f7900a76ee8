// Package discovery merges per-protocol mDNS service records into unified
// device configurations (spec.md §4.I). Grounded on the grouping idiom in
// internal/ice/mdns/client.go's cache, generalized from a single ephemeral
// hostname per record to multi-identifier device grouping.
package discovery

import (
	"fmt"
	"strings"

	"github.com/lanikai/atvkit/device"
)

// Merge groups service records into device configs. Two records belong to
// the same device if (1) their identifiers overlap after lowercasing, or
// (2) they share a host address and at least one record declares the
// other's identifier in its properties (spec.md §4.I).
func Merge(records []device.ServiceRecord) map[string]*device.DeviceConfig {
	groups := newUnionFind()
	for i := range records {
		groups.add(i)
	}

	for i := range records {
		for j := i + 1; j < len(records); j++ {
			if sameDevice(records[i], records[j]) {
				groups.union(i, j)
			}
		}
	}

	out := make(map[string]*device.DeviceConfig)
	for root, members := range groups.components() {
		cfg := &device.DeviceConfig{AllIdentifiers: map[string]struct{}{}}
		for _, idx := range members {
			r := records[idx]
			cfg.Records = append(cfg.Records, r)
			if r.Identifier != "" {
				cfg.AllIdentifiers[strings.ToLower(r.Identifier)] = struct{}{}
			}
		}
		key := groupKey(cfg, root)
		out[key] = cfg
	}
	return out
}

func groupKey(cfg *device.DeviceConfig, fallback int) string {
	for id := range cfg.AllIdentifiers {
		return id
	}
	return fmt.Sprintf("unidentified-%d", fallback)
}

func sameDevice(a, b device.ServiceRecord) bool {
	if identifiersOverlap(a, b) {
		return true
	}
	if a.Host != b.Host {
		return false
	}
	return declaresIdentifier(a, b.Identifier) || declaresIdentifier(b, a.Identifier)
}

func identifiersOverlap(a, b device.ServiceRecord) bool {
	if a.Identifier == "" || b.Identifier == "" {
		return false
	}
	return strings.EqualFold(a.Identifier, b.Identifier)
}

// declaresIdentifier reports whether r's properties mention id anywhere in
// their values, the way Companion/MRP TXT records cross-reference a
// sibling DMAP/AirPlay identifier.
func declaresIdentifier(r device.ServiceRecord, id string) bool {
	if id == "" {
		return false
	}
	for _, v := range r.Properties {
		if strings.EqualFold(v, id) {
			return true
		}
	}
	return false
}

// Filter narrows configs down to those that are ready and, if id is
// non-empty, that carry it among their identifiers (spec.md §4.I, testable
// property 9).
func Filter(configs map[string]*device.DeviceConfig, id string, protocol *device.ProtocolKind, hosts []string) []*device.DeviceConfig {
	var out []*device.DeviceConfig
	for _, cfg := range configs {
		if !cfg.Ready() {
			continue
		}
		if id != "" && !cfg.HasIdentifier(id) {
			continue
		}
		if protocol != nil {
			if _, ok := cfg.ByProtocol(*protocol); !ok {
				continue
			}
		}
		if len(hosts) > 0 && !hostMatches(cfg, hosts) {
			continue
		}
		out = append(out, cfg)
	}
	return out
}

func hostMatches(cfg *device.DeviceConfig, hosts []string) bool {
	for _, r := range cfg.Records {
		for _, h := range hosts {
			if r.Host == h {
				return true
			}
		}
	}
	return false
}

// unionFind is a minimal disjoint-set used to group record indices into
// connected components under sameDevice.
type unionFind struct {
	parent map[int]int
}

func newUnionFind() *unionFind {
	return &unionFind{parent: map[int]int{}}
}

func (u *unionFind) add(i int) {
	if _, ok := u.parent[i]; !ok {
		u.parent[i] = i
	}
}

func (u *unionFind) find(i int) int {
	for u.parent[i] != i {
		u.parent[i] = u.parent[u.parent[i]]
		i = u.parent[i]
	}
	return i
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra != rb {
		u.parent[ra] = rb
	}
}

func (u *unionFind) components() map[int][]int {
	out := make(map[int][]int)
	for i := range u.parent {
		root := u.find(i)
		out[root] = append(out[root], i)
	}
	return out
}
