package cli

import (
	"reflect"

	"github.com/alecthomas/kong"

	"github.com/frobware/go-vhoststats"
)

// kindMapper creates a Kong mapper for vhoststats.Kind.
func kindMapper() kong.MapperFunc {
	return func(ctx *kong.DecodeContext, target reflect.Value) error {
		var s string
		if err := ctx.Scan.PopValueInto("kind", &s); err != nil {
			return err
		}
		kind, err := vhoststats.ParseKind(s)
		if err != nil {
			return err
		}
		target.Set(reflect.ValueOf(kind))
		return nil
	}
}

// addressMapper creates a Kong mapper for vhoststats.KernelAddress.
func addressMapper() kong.MapperFunc {
	return func(ctx *kong.DecodeContext, target reflect.Value) error {
		var s string
		if err := ctx.Scan.PopValueInto("address", &s); err != nil {
			return err
		}
		addr, err := vhoststats.ParseKernelAddress(s)
		if err != nil {
			return err
		}
		target.Set(reflect.ValueOf(addr))
		return nil
	}
}
