package runspec

import "k8s.io/apimachinery/pkg/api/resource"

// Resources is the resource footprint of one instance of a run-spec.
// Quantities use apimachinery's resource.Quantity so cpu/mem/disk/gpu
// values parse and compare the same way Kubernetes container resource
// requests do, instead of bare float64s that can't round-trip
// "500m"-style human-entered values.
type Resources struct {
	CPU  resource.Quantity
	Mem  resource.Quantity
	Disk resource.Quantity
	GPUs resource.Quantity
}

// Equal compares resource quantities by value, not by their original string
// representation (resource.Quantity.Cmp ignores formatting differences).
func (r Resources) Equal(o Resources) bool {
	return r.CPU.Cmp(o.CPU) == 0 &&
		r.Mem.Cmp(o.Mem) == 0 &&
		r.Disk.Cmp(o.Disk) == 0 &&
		r.GPUs.Cmp(o.GPUs) == 0
}
