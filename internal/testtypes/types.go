package testtypes

import (
	"context"
)

type InterfaceA interface {
	A()
	Close(context.Context) error
}

type InterfaceB interface {
	B()
	Close(context.Context)
}

type InterfaceC interface {
	C()
	Close() error
}

type InterfaceD interface {
	D()
	Close()
}

type StructA struct {
	Tag any
}

func (StructA) A()                          {}
func (StructA) Close(context.Context) error { return nil }

type StructB struct{}

func (StructB) B()                    {}
func (StructB) Close(context.Context) {}

type StructC struct{}

func (StructC) C()           {}
func (StructC) Close() error { return nil }

type StructD struct{}

func (StructD) D()     {}
func (StructD) Close() {}

// StructE has no Close method.
type StructE struct{}
