package builtins

import (
	"fmt"
	"strings"

	"github.com/dlclark/regexp2"

	"github.com/pro-grammer-SD/axiom/pkg/vm"
)

func strArg(name string, args []vm.Value, i int) (string, error) {
	if !args[i].IsString() {
		return "", fmt.Errorf("%s expects a string, got %s", name, args[i].TypeName())
	}
	return args[i].AsString(), nil
}

// stringsModule is the `str` namespace. The pattern-based operations run
// on regexp2, which supports the richer syntax scripts tend to paste in.
func stringsModule() *vm.ModuleObj {
	return module("str", nil, []export{
		{"len", 1, func(in *vm.Interp, args []vm.Value) (vm.Value, error) {
			s, err := strArg("str.len", args, 0)
			if err != nil {
				return vm.Nil(), err
			}
			return vm.Int(int64(len([]rune(s)))), nil
		}},
		{"upper", 1, func(in *vm.Interp, args []vm.Value) (vm.Value, error) {
			s, err := strArg("str.upper", args, 0)
			if err != nil {
				return vm.Nil(), err
			}
			return vm.String(strings.ToUpper(s)), nil
		}},
		{"lower", 1, func(in *vm.Interp, args []vm.Value) (vm.Value, error) {
			s, err := strArg("str.lower", args, 0)
			if err != nil {
				return vm.Nil(), err
			}
			return vm.String(strings.ToLower(s)), nil
		}},
		{"trim", 1, func(in *vm.Interp, args []vm.Value) (vm.Value, error) {
			s, err := strArg("str.trim", args, 0)
			if err != nil {
				return vm.Nil(), err
			}
			return vm.String(strings.TrimSpace(s)), nil
		}},
		{"contains", 2, func(in *vm.Interp, args []vm.Value) (vm.Value, error) {
			s, err := strArg("str.contains", args, 0)
			if err != nil {
				return vm.Nil(), err
			}
			sub, err := strArg("str.contains", args, 1)
			if err != nil {
				return vm.Nil(), err
			}
			return vm.Bool(strings.Contains(s, sub)), nil
		}},
		{"split", 2, func(in *vm.Interp, args []vm.Value) (vm.Value, error) {
			s, err := strArg("str.split", args, 0)
			if err != nil {
				return vm.Nil(), err
			}
			sep, err := strArg("str.split", args, 1)
			if err != nil {
				return vm.Nil(), err
			}
			parts := strings.Split(s, sep)
			elems := make([]vm.Value, len(parts))
			for i, p := range parts {
				elems[i] = vm.String(p)
			}
			return vm.Object(vm.NewList(elems)), nil
		}},
		{"join", 2, func(in *vm.Interp, args []vm.Value) (vm.Value, error) {
			list, ok := args[0].AsObjectOk().(*vm.ListObj)
			if !ok {
				return vm.Nil(), fmt.Errorf("str.join expects a list, got %s", args[0].TypeName())
			}
			sep, err := strArg("str.join", args, 1)
			if err != nil {
				return vm.Nil(), err
			}
			parts := make([]string, len(list.Elems))
			for i, e := range list.Elems {
				parts[i] = e.Display()
			}
			return vm.String(strings.Join(parts, sep)), nil
		}},
		{"match", 2, func(in *vm.Interp, args []vm.Value) (vm.Value, error) {
			s, err := strArg("str.match", args, 0)
			if err != nil {
				return vm.Nil(), err
			}
			pattern, err := strArg("str.match", args, 1)
			if err != nil {
				return vm.Nil(), err
			}
			re, err := regexp2.Compile(pattern, regexp2.None)
			if err != nil {
				return vm.Nil(), fmt.Errorf("str.match: invalid pattern: %v", err)
			}
			m, err := re.FindStringMatch(s)
			if err != nil {
				return vm.Nil(), fmt.Errorf("str.match: %v", err)
			}
			if m == nil {
				return vm.Nil(), nil
			}
			return vm.String(m.String()), nil
		}},
		{"replace", 3, func(in *vm.Interp, args []vm.Value) (vm.Value, error) {
			s, err := strArg("str.replace", args, 0)
			if err != nil {
				return vm.Nil(), err
			}
			pattern, err := strArg("str.replace", args, 1)
			if err != nil {
				return vm.Nil(), err
			}
			repl, err := strArg("str.replace", args, 2)
			if err != nil {
				return vm.Nil(), err
			}
			re, err := regexp2.Compile(pattern, regexp2.None)
			if err != nil {
				return vm.Nil(), fmt.Errorf("str.replace: invalid pattern: %v", err)
			}
			out, err := re.Replace(s, repl, -1, -1)
			if err != nil {
				return vm.Nil(), fmt.Errorf("str.replace: %v", err)
			}
			return vm.String(out), nil
		}},
	})
}
