// Command axiom is the Axiom language toolchain: script execution,
// static checking, formatting, package management, configuration, and
// an interactive REPL.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/pro-grammer-SD/axiom/pkg/config"
	"github.com/pro-grammer-SD/axiom/pkg/diagnostics"
	"github.com/pro-grammer-SD/axiom/pkg/driver"
	"github.com/pro-grammer-SD/axiom/pkg/format"
	"github.com/pro-grammer-SD/axiom/pkg/lexer"
	"github.com/pro-grammer-SD/axiom/pkg/pkgmgr"
	"github.com/pro-grammer-SD/axiom/pkg/source"
)

const version = "0.1.0"

// Exit codes: 0 success, 1 compile-family diagnostic, 2 runtime
// diagnostic, 3 file not found, 4 bad arguments.
const (
	exitOK       = 0
	exitCompile  = 1
	exitRuntime  = 2
	exitNoFile   = 3
	exitBadUsage = 4
)

const usageText = `Axiom programming language

usage: axiom <command> [arguments]

commands:
    run FILE [ARGS...]   execute a script
    chk FILE             parse and check a script without executing it
    fmt FILE [--write]   format source (prints to stdout unless --write)
    pkg add DIR          install the package in DIR
    pkg remove NAME      uninstall a package
    pkg list             list installed packages
    pkg info NAME        show a package's manifest
    conf list            show every setting
    conf get NAME        show one setting
    conf set NAME VALUE  change a setting
    conf reset [NAME]    restore defaults
    conf describe NAME   explain a setting
    repl                 interactive session

environment:
    AXIOM_HOME         settings directory (default ~/.axiom)
    AXIOM_LIBS         package store (default $AXIOM_HOME/libs)
    AXIOM_DEBUG=1      verbose engine logging
    AXIOM_NO_COLOR=1   disable colored diagnostics
    AXIOM_STACK_DEPTH  override max_call_depth for this run
`

func main() {
	verbosity := 0
	if os.Getenv("AXIOM_DEBUG") == "1" {
		verbosity = 2
	}
	commonlog.Configure(verbosity, nil)

	args := os.Args[1:]
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usageText)
		os.Exit(exitBadUsage)
	}
	switch args[0] {
	case "--version", "version":
		fmt.Println("axiom " + version)
	case "--help", "-h", "help":
		fmt.Print(usageText)
	case "run":
		os.Exit(cmdRun(args[1:]))
	case "chk":
		os.Exit(cmdChk(args[1:]))
	case "fmt":
		os.Exit(cmdFmt(args[1:]))
	case "pkg":
		os.Exit(cmdPkg(args[1:]))
	case "conf":
		os.Exit(cmdConf(args[1:]))
	case "repl":
		os.Exit(cmdRepl())
	default:
		fmt.Fprintf(os.Stderr, "axiom: unknown command '%s'\n\n%s", args[0], usageText)
		os.Exit(exitBadUsage)
	}
}

// loadConfig reads the settings file, applying the AXIOM_STACK_DEPTH
// override without persisting it.
func loadConfig() *config.Store {
	conf, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "axiom: config: %s\n", err)
		conf = config.Defaults()
	}
	if depth := os.Getenv("AXIOM_STACK_DEPTH"); depth != "" {
		if err := conf.Set("max_call_depth", depth); err != nil {
			fmt.Fprintf(os.Stderr, "axiom: AXIOM_STACK_DEPTH: %s\n", err)
		}
	}
	return conf
}

func emitAll(errs []*diagnostics.Diagnostic) int {
	for _, d := range errs {
		diagnostics.Emit(d)
	}
	return errs[0].ExitCode()
}

// cmdRun executes a script. Trailing arguments are accepted and ignored:
// no intrinsic exposes them to the program yet.
func cmdRun(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: axiom run FILE [ARGS...]")
		return exitBadUsage
	}
	path := args[0]
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintf(os.Stderr, "axiom: %s: no such file\n", path)
		return exitNoFile
	}
	conf := loadConfig()
	sess := driver.NewWith(conf, filepath.Dir(path))
	_, errs := sess.RunFile(path)
	if prof := sess.Profiler(); prof != nil {
		fmt.Fprintln(os.Stderr, prof.Summary())
		if conf.Bool("flame_graph") {
			writeFlameGraph(sess)
		} else {
			prof.Report(os.Stderr)
		}
	}
	if len(errs) != 0 {
		return emitAll(errs)
	}
	return exitOK
}

func writeFlameGraph(sess *driver.Axiom) {
	f, err := os.Create("axiom.folded")
	if err != nil {
		fmt.Fprintf(os.Stderr, "axiom: flame graph: %s\n", err)
		return
	}
	defer f.Close()
	if err := sess.Profiler().Flame.WriteFolded(f); err != nil {
		fmt.Fprintf(os.Stderr, "axiom: flame graph: %s\n", err)
		return
	}
	fmt.Fprintln(os.Stderr, "flame graph written to axiom.folded")
}

func cmdChk(args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: axiom chk FILE")
		return exitBadUsage
	}
	path := args[0]
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintf(os.Stderr, "axiom: %s: no such file\n", path)
		return exitNoFile
	}
	sess := driver.NewWith(loadConfig(), filepath.Dir(path))
	if errs := sess.CheckFile(path); len(errs) != 0 {
		for _, d := range errs {
			diagnostics.Emit(d)
		}
		return exitCompile
	}
	return exitOK
}

func cmdFmt(args []string) int {
	fs := flag.NewFlagSet("fmt", flag.ContinueOnError)
	write := fs.Bool("write", false, "rewrite the file in place")
	fs.SetOutput(os.Stderr)
	if fs.Parse(args) != nil || fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: axiom fmt FILE [--write]")
		return exitBadUsage
	}
	path := fs.Arg(0)
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "axiom: %s: no such file\n", path)
		return exitNoFile
	}
	out, errs := format.Source(source.FromFile(path, lexer.Normalize(string(data))))
	if len(errs) != 0 {
		return emitAll(errs)
	}
	if *write {
		if err := os.WriteFile(path, []byte(out), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "axiom: %s\n", err)
			return exitCompile
		}
		return exitOK
	}
	fmt.Print(out)
	return exitOK
}

func cmdPkg(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: axiom pkg add|remove|list|info")
		return exitBadUsage
	}
	store := pkgmgr.Open()
	switch args[0] {
	case "add":
		if len(args) != 2 {
			fmt.Fprintln(os.Stderr, "usage: axiom pkg add DIR")
			return exitBadUsage
		}
		m, err := store.Add(args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "axiom: %s\n", err)
			return exitCompile
		}
		fmt.Printf("installed %s %s\n", m.Package.Name, m.Package.Version)
	case "remove":
		if len(args) != 2 {
			fmt.Fprintln(os.Stderr, "usage: axiom pkg remove NAME")
			return exitBadUsage
		}
		if err := store.Remove(args[1]); err != nil {
			fmt.Fprintf(os.Stderr, "axiom: %s\n", err)
			return exitCompile
		}
		fmt.Printf("removed %s\n", args[1])
	case "list":
		list, err := store.List()
		if err != nil {
			fmt.Fprintf(os.Stderr, "axiom: %s\n", err)
			return exitCompile
		}
		if len(list) == 0 {
			fmt.Println("no packages installed")
			return exitOK
		}
		for _, m := range list {
			fmt.Printf("%-20s %-10s %s\n", m.Package.Name, m.Package.Version, m.Package.Description)
		}
	case "info":
		if len(args) != 2 {
			fmt.Fprintln(os.Stderr, "usage: axiom pkg info NAME")
			return exitBadUsage
		}
		m, err := store.Info(args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "axiom: %s\n", err)
			return exitCompile
		}
		fmt.Printf("name:        %s\n", m.Package.Name)
		fmt.Printf("version:     %s\n", m.Package.Version)
		if m.Package.Description != "" {
			fmt.Printf("description: %s\n", m.Package.Description)
		}
		if m.Package.Author != "" {
			fmt.Printf("author:      %s\n", m.Package.Author)
		}
		fmt.Printf("entry:       %s\n", m.Entry())
		for name, ver := range m.Dependencies {
			fmt.Printf("requires:    %s %s\n", name, ver)
		}
	default:
		fmt.Fprintf(os.Stderr, "axiom: unknown pkg command '%s'\n", args[0])
		return exitBadUsage
	}
	return exitOK
}

func cmdConf(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: axiom conf get|set|list|reset|describe")
		return exitBadUsage
	}
	conf, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "axiom: config: %s\n", err)
		return exitCompile
	}
	switch args[0] {
	case "get":
		if len(args) != 2 {
			fmt.Fprintln(os.Stderr, "usage: axiom conf get NAME")
			return exitBadUsage
		}
		value, ok := conf.Get(args[1])
		if !ok {
			fmt.Fprintf(os.Stderr, "axiom: unknown setting '%s'\n", args[1])
			return exitCompile
		}
		fmt.Println(value)
	case "set":
		if len(args) != 3 {
			fmt.Fprintln(os.Stderr, "usage: axiom conf set NAME VALUE")
			return exitBadUsage
		}
		if err := conf.Set(args[1], args[2]); err != nil {
			fmt.Fprintf(os.Stderr, "axiom: %s\n", err)
			return exitCompile
		}
		if err := conf.Save(); err != nil {
			fmt.Fprintf(os.Stderr, "axiom: %s\n", err)
			return exitCompile
		}
	case "list":
		for _, p := range config.Properties() {
			value, _ := conf.Get(p.Name)
			fmt.Printf("%-20s %s\n", p.Name, value)
		}
	case "reset":
		if len(args) == 2 {
			if err := conf.Reset(args[1]); err != nil {
				fmt.Fprintf(os.Stderr, "axiom: %s\n", err)
				return exitCompile
			}
		} else {
			conf.ResetAll()
		}
		if err := conf.Save(); err != nil {
			fmt.Fprintf(os.Stderr, "axiom: %s\n", err)
			return exitCompile
		}
	case "describe":
		if len(args) != 2 {
			fmt.Fprintln(os.Stderr, "usage: axiom conf describe NAME")
			return exitBadUsage
		}
		p, ok := config.Describe(args[1])
		if !ok {
			fmt.Fprintf(os.Stderr, "axiom: unknown setting '%s'\n", args[1])
			return exitCompile
		}
		kind := "bool"
		if p.Kind == config.KindInt {
			kind = fmt.Sprintf("int (%d-%d)", p.Min, p.Max)
		}
		fmt.Printf("%s\n  type:    %s\n  default: %s\n  %s\n", p.Name, kind, p.Default, p.Desc)
	default:
		fmt.Fprintf(os.Stderr, "axiom: unknown conf command '%s'\n", args[0])
		return exitBadUsage
	}
	return exitOK
}

func cmdRepl() int {
	sess := driver.NewWith(loadConfig(), ".")
	rl := liner.NewLiner()
	defer rl.Close()
	rl.SetCtrlCAborts(true)
	rl.SetCompleter(func(prefix string) (out []string) {
		for _, name := range sess.GlobalNames() {
			if strings.HasPrefix(name, prefix) {
				out = append(out, name)
			}
		}
		return
	})

	histPath := filepath.Join(config.Dir(), "history")
	if f, err := os.Open(histPath); err == nil {
		rl.ReadHistory(f)
		f.Close()
	}

	fmt.Printf("axiom %s (ctrl-d to exit)\n", version)
	for {
		input, err := rl.Prompt(">> ")
		if err == liner.ErrPromptAborted {
			continue
		}
		if err != nil { // io.EOF
			fmt.Println()
			break
		}
		if strings.TrimSpace(input) == "" {
			continue
		}
		rl.AppendHistory(input)
		v, errs := sess.Eval(input)
		if len(errs) != 0 {
			for _, d := range errs {
				diagnostics.Emit(d)
			}
			continue
		}
		if !v.IsNil() {
			fmt.Println(v.Inspect())
		}
	}

	if err := os.MkdirAll(config.Dir(), 0o755); err == nil {
		if f, err := os.Create(histPath); err == nil {
			rl.WriteHistory(f)
			f.Close()
		}
	}
	return exitOK
}
