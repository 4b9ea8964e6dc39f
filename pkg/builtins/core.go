package builtins

import (
	"fmt"

	"github.com/pro-grammer-SD/axiom/pkg/vm"
)

func (r *Registry) registerCore() {
	r.Register("print", -1, func(in *vm.Interp, args []vm.Value) (vm.Value, error) {
		for i, a := range args {
			if i > 0 {
				fmt.Fprint(r.Out, " ")
			}
			fmt.Fprint(r.Out, a.Display())
		}
		fmt.Fprintln(r.Out)
		return vm.Nil(), nil
	})
}
