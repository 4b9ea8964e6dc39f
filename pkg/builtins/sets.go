package builtins

import (
	"fmt"

	"github.com/pro-grammer-SD/axiom/pkg/vm"
)

func setArg(name string, args []vm.Value, i int) (*vm.SetObj, error) {
	s, ok := args[i].AsObjectOk().(*vm.SetObj)
	if !ok {
		return nil, fmt.Errorf("%s expects a set, got %s", name, args[i].TypeName())
	}
	return s, nil
}

// setsModule is the `set` namespace. Sets have no literal form; programs
// build them here, from scratch or from a list.
func setsModule() *vm.ModuleObj {
	return module("set", nil, []export{
		{"new", -1, func(in *vm.Interp, args []vm.Value) (vm.Value, error) {
			s := vm.NewSet()
			if len(args) > 1 {
				return vm.Nil(), fmt.Errorf("set.new expects at most 1 argument, got %d", len(args))
			}
			if len(args) == 1 {
				list, ok := args[0].AsObjectOk().(*vm.ListObj)
				if !ok {
					return vm.Nil(), fmt.Errorf("set.new expects a list, got %s", args[0].TypeName())
				}
				for _, e := range list.Elems {
					if !s.Add(e) {
						return vm.Nil(), fmt.Errorf("set.new: %s is not hashable", e.TypeName())
					}
				}
			}
			return vm.Object(s), nil
		}},
		{"add", 2, func(in *vm.Interp, args []vm.Value) (vm.Value, error) {
			s, err := setArg("set.add", args, 0)
			if err != nil {
				return vm.Nil(), err
			}
			if !s.Add(args[1]) {
				return vm.Nil(), fmt.Errorf("set.add: %s is not hashable", args[1].TypeName())
			}
			return args[0], nil
		}},
		{"has", 2, func(in *vm.Interp, args []vm.Value) (vm.Value, error) {
			s, err := setArg("set.has", args, 0)
			if err != nil {
				return vm.Nil(), err
			}
			return vm.Bool(s.Has(args[1])), nil
		}},
		{"remove", 2, func(in *vm.Interp, args []vm.Value) (vm.Value, error) {
			s, err := setArg("set.remove", args, 0)
			if err != nil {
				return vm.Nil(), err
			}
			return vm.Bool(s.Remove(args[1])), nil
		}},
		{"len", 1, func(in *vm.Interp, args []vm.Value) (vm.Value, error) {
			s, err := setArg("set.len", args, 0)
			if err != nil {
				return vm.Nil(), err
			}
			return vm.Int(int64(s.Len())), nil
		}},
		{"list", 1, func(in *vm.Interp, args []vm.Value) (vm.Value, error) {
			s, err := setArg("set.list", args, 0)
			if err != nil {
				return vm.Nil(), err
			}
			elems := make([]vm.Value, len(s.Values()))
			copy(elems, s.Values())
			return vm.Object(vm.NewList(elems)), nil
		}},
		{"union", 2, func(in *vm.Interp, args []vm.Value) (vm.Value, error) {
			a, err := setArg("set.union", args, 0)
			if err != nil {
				return vm.Nil(), err
			}
			b, err := setArg("set.union", args, 1)
			if err != nil {
				return vm.Nil(), err
			}
			out := vm.NewSet()
			for _, v := range a.Values() {
				out.Add(v)
			}
			for _, v := range b.Values() {
				out.Add(v)
			}
			return vm.Object(out), nil
		}},
		{"inter", 2, func(in *vm.Interp, args []vm.Value) (vm.Value, error) {
			a, err := setArg("set.inter", args, 0)
			if err != nil {
				return vm.Nil(), err
			}
			b, err := setArg("set.inter", args, 1)
			if err != nil {
				return vm.Nil(), err
			}
			out := vm.NewSet()
			for _, v := range a.Values() {
				if b.Has(v) {
					out.Add(v)
				}
			}
			return vm.Object(out), nil
		}},
	})
}
