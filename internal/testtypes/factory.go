package testtypes

import (
	"sync/atomic"
)

// Factory creates StructA values tagged with an increasing count.
type Factory struct {
	count atomic.Int32
}

func (f *Factory) NewStructA() *StructA {
	n := f.count.Add(1)
	return &StructA{
		Tag: int(n),
	}
}

func (f *Factory) NewInterfaceA() InterfaceA {
	return f.NewStructA()
}

// Calls returns the number of values created.
func (f *Factory) Calls() int {
	return int(f.count.Load())
}
