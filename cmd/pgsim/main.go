package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/pgbridge/datum"
	"github.com/wippyai/pgbridge/errors"
	"github.com/wippyai/pgbridge/fcall"
	"github.com/wippyai/pgbridge/guard"
	"github.com/wippyai/pgbridge/mem"
	"github.com/wippyai/pgbridge/resource"
	"github.com/wippyai/pgbridge/sim"
)

var logger = zap.NewNop()

// argFlags collects repeated -arg flags. Each may hold several
// comma-separated type:value pairs.
type argFlags []string

func (a *argFlags) String() string { return strings.Join(*a, ",") }

func (a *argFlags) Set(v string) error {
	*a = append(*a, strings.Split(v, ",")...)
	return nil
}

func main() {
	var (
		scenario    = flag.String("scenario", "", "Path to a TOML scenario file")
		funcName    = flag.String("func", "", "Function to call")
		cancel      = flag.Bool("cancel", false, "Arm a query cancel before the call")
		list        = flag.Bool("list", false, "List registered functions and exit")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
		verbose     = flag.Bool("v", false, "Log engine and bridge activity to stderr")
		args        argFlags
	)
	flag.Var(&args, "arg", "Argument as type:value (repeatable, comma-separated)")
	flag.Parse()

	if *scenario == "" && *funcName == "" && !*list && !*interactive {
		fmt.Fprintln(os.Stderr, "Usage: pgsim -scenario <file.toml>")
		fmt.Fprintln(os.Stderr, "       pgsim -func name [-arg type:value ...] [-cancel]")
		fmt.Fprintln(os.Stderr, "       pgsim -list")
		fmt.Fprintln(os.Stderr, "       pgsim -i  (interactive mode)")
		os.Exit(1)
	}

	if *verbose {
		l, err := zap.NewDevelopment()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer l.Sync() //nolint:errcheck
		setLogger(l)
	}

	var sc *sim.Scenario
	if *scenario != "" {
		var err error
		if sc, err = sim.LoadScenario(*scenario); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	s, err := newSession(sc)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer s.Close()

	switch {
	case *interactive:
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			fmt.Fprintln(os.Stderr, "Error: interactive mode needs a terminal")
			os.Exit(1)
		}
		err = runInteractive(s, *scenario)
	case *list:
		listFunctions(os.Stdout, s.registry)
	case *funcName != "":
		err = runCall(os.Stdout, s, *funcName, args, *cancel)
	default:
		var failed int
		failed, err = runScenario(os.Stdout, s, sc)
		if err == nil && failed > 0 {
			err = fmt.Errorf("%d of %d calls did not match", failed, len(sc.Calls))
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func setLogger(l *zap.Logger) {
	logger = l
	sim.SetLogger(l.Named("sim"))
	guard.SetLogger(l.Named("guard"))
	fcall.SetLogger(l.Named("fcall"))
	mem.SetLogger(l.Named("mem"))
	resource.SetLogger(l.Named("resource"))
}

func listFunctions(w io.Writer, r *fcall.Registry) {
	fmt.Fprintf(w, "Registered functions:\n")
	for _, name := range r.Names() {
		for _, sig := range r.Overloads(name) {
			strict := ""
			if sig.Strict {
				strict = " strict"
			}
			fmt.Fprintf(w, "  %s -> %s%s\n", sig, datum.TypeName(sig.Result), strict)
		}
	}
}

func runCall(w io.Writer, s *session, name string, raw []string, cancel bool) error {
	args := make([]arg, 0, len(raw))
	for _, r := range raw {
		a, err := parseArg(r)
		if err != nil {
			return err
		}
		args = append(args, a)
	}
	out, err := s.call(name, args, cancel)
	if err != nil {
		return fmt.Errorf("call %s: %w", name, err)
	}
	printNotices(w, s)
	if out.report != nil {
		fmt.Fprintln(w, out.report)
		return nil
	}
	fmt.Fprintf(w, "Result: %s\n", out)
	return nil
}

// runScenario runs every call of sc in order and returns how many did not
// meet their expectation.
func runScenario(w io.Writer, s *session, sc *sim.Scenario) (int, error) {
	if sc.Name != "" {
		fmt.Fprintf(w, "Scenario: %s\n", sc.Name)
	}
	failed := 0
	for i, c := range sc.Calls {
		if err := s.reset(c.Reset); err != nil {
			return failed, fmt.Errorf("call %d: %w", i+1, err)
		}
		args, err := argsFromSpec(c.Args)
		if err != nil {
			return failed, fmt.Errorf("call %d: %w", i+1, err)
		}
		out, err := s.call(c.Function, args, c.Cancel)
		if err != nil {
			return failed, fmt.Errorf("call %d %s: %w", i+1, c.Function, err)
		}
		printNotices(w, s)

		status := "ok"
		if err := check(c.Expect, out); err != nil {
			status = "FAIL: " + err.Error()
			failed++
		}
		fmt.Fprintf(w, "%3d %-30s %-24s %s\n", i+1, callName(c.Function, out), summary(out), status)
	}
	return failed, nil
}

func callName(name string, out outcome) string {
	if out.sig.Name == "" {
		return name
	}
	return out.sig.String()
}

func summary(out outcome) string {
	if out.report != nil {
		return fmt.Sprintf("%s %s", out.report.Level, out.report.Code)
	}
	return out.String()
}

func printNotices(w io.Writer, s *session) {
	for _, n := range s.engine.Notices() {
		if n.Level >= errors.LevelNotice {
			fmt.Fprintln(w, n)
		}
	}
}
