package main

import (
	"flag"
	"fmt"
	"io"
	"runtime/debug"
	"strings"
)

var (
	serveFn = serve
)

var buildVersion = "dev"

const (
	flagHelpShort = "-h"
	flagHelpLong  = "--help"
)

type commandContext struct {
	stdout io.Writer
	stderr io.Writer
}

func writef(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}

func writeln(w io.Writer, args ...any) {
	_, _ = fmt.Fprintln(w, args...)
}

func runCLI(args []string, stdout, stderr io.Writer) int {
	ctx := commandContext{stdout: stdout, stderr: stderr}

	if len(args) == 0 {
		return serveFn()
	}

	switch args[0] {
	case "-v", "--version", "version":
		writef(stdout, "angrepa version %s\n", currentVersion())
		return 0
	case "serve":
		return runServeCommand(ctx, args[1:])
	case "help", flagHelpShort, flagHelpLong:
		printRootHelp(stdout)
		return 0
	default:
		if strings.HasPrefix(args[0], "-") {
			return runServeCommand(ctx, args)
		}
		writef(stderr, "unknown command: %s\n\n", args[0])
		printRootHelp(stderr)
		return 2
	}
}

func runServeCommand(ctx commandContext, args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(ctx.stderr)
	help := fs.Bool("help", false, "show help")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *help {
		printServeHelp(ctx.stdout)
		return 0
	}
	if fs.NArg() > 0 {
		writef(ctx.stderr, "unexpected argument(s): %s\n", strings.Join(fs.Args(), " "))
		printServeHelp(ctx.stderr)
		return 2
	}
	return serveFn()
}

func printRootHelp(w io.Writer) {
	writeln(w, "angrepa command-line interface")
	writeln(w, "")
	writeln(w, "Usage:")
	writeln(w, "  angrepa [serve]")
	writeln(w, "  angrepa version")
	writeln(w, "")
	writeln(w, "Commands:")
	writeln(w, "  serve      Start the attack-coordination engine (default)")
	writeln(w, "  version    Print the build version")
}

func printServeHelp(w io.Writer) {
	writeln(w, "Usage:")
	writeln(w, "  angrepa serve")
	writeln(w, "")
	writeln(w, "Starts the coordination engine using config.toml in the working directory.")
}

func currentVersion() string {
	if value := strings.TrimSpace(buildVersion); value != "" && value != "dev" && value != "(devel)" {
		return value
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		if strings.TrimSpace(bi.Main.Version) != "" && bi.Main.Version != "(devel)" {
			return bi.Main.Version
		}
	}
	return "dev"
}
