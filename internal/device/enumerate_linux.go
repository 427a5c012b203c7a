//go:build linux

package device

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Enumerate lists the NUMA nodes visible under /sys/devices/system/node,
// standing in for libnuma's numa_num_configured_nodes/numa_node_to_cpus.
// If the sysfs tree is unavailable (containers, non-NUMA hardware), it
// falls back to a single synthetic device, matching sicm's behavior of
// always having at least one usable device.
func Enumerate() *List {
	entries, err := os.ReadDir("/sys/devices/system/node")
	if err != nil {
		return fallbackList()
	}

	var nodes []int
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "node") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(name, "node"))
		if err != nil {
			continue
		}
		nodes = append(nodes, n)
	}
	if len(nodes) == 0 {
		return fallbackList()
	}
	sort.Ints(nodes)

	devices := make([]*Device, 0, len(nodes))
	for _, n := range nodes {
		devices = append(devices, &Device{Tag: Tag(filepath.Join("node", strconv.Itoa(n))), Node: n})
	}
	return &List{Devices: devices}
}

func fallbackList() *List {
	return &List{Devices: []*Device{{Tag: "default", Node: -1}}}
}
