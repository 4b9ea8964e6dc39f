package builtins

import (
	"fmt"
	"math"

	"github.com/pro-grammer-SD/axiom/pkg/vm"
)

func numArg(name string, args []vm.Value, i int) (float64, error) {
	if !args[i].IsNumber() {
		return 0, fmt.Errorf("%s expects a number, got %s", name, args[i].TypeName())
	}
	return args[i].AsNumber(), nil
}

// mathModule is the `mth` namespace.
func mathModule() *vm.ModuleObj {
	consts := map[string]vm.Value{
		"pi": vm.Float(math.Pi),
		"e":  vm.Float(math.E),
	}
	return module("mth", consts, []export{
		{"abs", 1, func(in *vm.Interp, args []vm.Value) (vm.Value, error) {
			if args[0].IsInt() {
				n := args[0].AsInt()
				if n < 0 {
					n = -n
				}
				return vm.Int(n), nil
			}
			f, err := numArg("mth.abs", args, 0)
			if err != nil {
				return vm.Nil(), err
			}
			return vm.Float(math.Abs(f)), nil
		}},
		{"sqrt", 1, func(in *vm.Interp, args []vm.Value) (vm.Value, error) {
			f, err := numArg("mth.sqrt", args, 0)
			if err != nil {
				return vm.Nil(), err
			}
			return vm.Float(math.Sqrt(f)), nil
		}},
		{"pow", 2, func(in *vm.Interp, args []vm.Value) (vm.Value, error) {
			base, err := numArg("mth.pow", args, 0)
			if err != nil {
				return vm.Nil(), err
			}
			exp, err := numArg("mth.pow", args, 1)
			if err != nil {
				return vm.Nil(), err
			}
			if args[0].IsInt() && args[1].IsInt() && args[1].AsInt() >= 0 {
				res := int64(1)
				b, e := args[0].AsInt(), args[1].AsInt()
				for ; e > 0; e-- {
					res *= b
				}
				return vm.Int(res), nil
			}
			return vm.Float(math.Pow(base, exp)), nil
		}},
		{"floor", 1, func(in *vm.Interp, args []vm.Value) (vm.Value, error) {
			f, err := numArg("mth.floor", args, 0)
			if err != nil {
				return vm.Nil(), err
			}
			return vm.Int(int64(math.Floor(f))), nil
		}},
		{"ceil", 1, func(in *vm.Interp, args []vm.Value) (vm.Value, error) {
			f, err := numArg("mth.ceil", args, 0)
			if err != nil {
				return vm.Nil(), err
			}
			return vm.Int(int64(math.Ceil(f))), nil
		}},
		{"min", 2, func(in *vm.Interp, args []vm.Value) (vm.Value, error) {
			a, err := numArg("mth.min", args, 0)
			if err != nil {
				return vm.Nil(), err
			}
			b, err := numArg("mth.min", args, 1)
			if err != nil {
				return vm.Nil(), err
			}
			if a <= b {
				return args[0], nil
			}
			return args[1], nil
		}},
		{"max", 2, func(in *vm.Interp, args []vm.Value) (vm.Value, error) {
			a, err := numArg("mth.max", args, 0)
			if err != nil {
				return vm.Nil(), err
			}
			b, err := numArg("mth.max", args, 1)
			if err != nil {
				return vm.Nil(), err
			}
			if a >= b {
				return args[0], nil
			}
			return args[1], nil
		}},
	})
}
