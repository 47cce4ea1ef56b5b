package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/peterh/liner"

	"github.com/daios-ai/pyparse"
)

const (
	appName     = "pyparse"
	historyFile = ".pyparse_history"
	promptMain  = ">>> "
	promptCont  = "... "
)

var banner = fmt.Sprintf("pyparse %s REPL\nCtrl+C cancels input, Ctrl+D exits. Type :quit to exit.", pyparse.Version)

func red(s string) string  { return "\x1b[31m" + s + "\x1b[0m" }
func blue(s string) string { return "\x1b[94m" + s + "\x1b[0m" }

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cmd := os.Args[1]
	switch cmd {
	case "parse":
		os.Exit(cmdParse(os.Args[2:]))
	case "fmt":
		os.Exit(cmdFmt(os.Args[2:]))
	case "repl":
		os.Exit(cmdRepl(os.Args[2:]))
	case "version":
		fmt.Println(pyparse.Version)
		return
	case "-h", "--help", "help":
		usage()
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "%s: unknown command %q\n", appName, cmd)
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Printf(`Usage:
  %s parse [-mode program|statement|expression] [file]   Parse and report errors.
  %s fmt [file]                                          Parse and re-emit canonical source.
  %s repl                                                Start the REPL.
  %s version                                             Print the release tag.

With no file, input is read from stdin.
`, appName, appName, appName, appName)
}

func readInput(args []string) (name string, src string, ok bool) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: cannot read stdin: %v\n", appName, err)
			return "", "", false
		}
		return "<stdin>", string(data), true
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: cannot read %s: %v\n", appName, args[0], err)
		return "", "", false
	}
	return args[0], string(data), true
}

// -----------------------------------------------------------------------------
// parse
// -----------------------------------------------------------------------------

func cmdParse(args []string) int {
	fs := flag.NewFlagSet("parse", flag.ContinueOnError)
	mode := fs.String("mode", "program", "parse mode: program, statement or expression")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	name, src, ok := readInput(fs.Args())
	if !ok {
		return 1
	}

	var top *pyparse.Top
	var err error
	switch *mode {
	case "program":
		top, err = pyparse.ParseProgram(src)
	case "statement":
		top, err = pyparse.ParseStatement(src)
	case "expression":
		top, err = pyparse.ParseExpression(src)
	default:
		fmt.Fprintf(os.Stderr, "%s: unknown mode %q\n", appName, *mode)
		return 2
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, red(pyparse.WrapErrorWithName(err, name, src).Error()))
		return 1
	}
	fmt.Print(pyparse.PrintTop(top))
	if top.Kind == pyparse.TopExpression {
		fmt.Println()
	}
	return 0
}

// -----------------------------------------------------------------------------
// fmt
// -----------------------------------------------------------------------------

func cmdFmt(args []string) int {
	name, src, ok := readInput(args)
	if !ok {
		return 1
	}
	top, err := pyparse.ParseProgram(src)
	if err != nil {
		fmt.Fprintln(os.Stderr, red(pyparse.WrapErrorWithName(err, name, src).Error()))
		return 1
	}
	fmt.Print(pyparse.PrintTop(top))
	return 0
}

// -----------------------------------------------------------------------------
// repl
// -----------------------------------------------------------------------------

func cmdRepl(_ []string) int {
	fmt.Println(banner)

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	defer func() {
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigc)
	go func() {
		<-sigc
		ln.Close()
		os.Exit(130)
	}()

	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}

	for {
		code, ok := readByParseProbe(ln, promptMain, promptCont)
		if !ok {
			fmt.Println()
			break
		}

		if strings.HasPrefix(strings.TrimSpace(code), ":") {
			switch strings.TrimSpace(strings.ToLower(code)) {
			case ":quit":
				return 0
			default:
				fmt.Printf("unknown command. Type :quit to exit.\n")
			}
			continue
		}

		if strings.TrimSpace(code) == "" {
			continue
		}

		top, err := pyparse.ParseProgramInteractive(code)
		if err != nil {
			fmt.Fprintln(os.Stderr, red(pyparse.WrapErrorWithSource(err, code).Error()))
			continue
		}
		fmt.Print(blue(pyparse.PrintTop(top)))
		ln.AppendHistory(strings.ReplaceAll(code, "\n", " "))
	}

	return 0
}

// readByParseProbe keeps prompting while the accumulated input parses
// as incomplete, so multi-line constructs can be typed naturally.
func readByParseProbe(ln *liner.State, prompt, cont string) (string, bool) {
	var b strings.Builder

	for {
		var line string
		var err error
		if b.Len() == 0 {
			line, err = ln.Prompt(prompt)
		} else {
			line, err = ln.Prompt(cont)
		}
		if errors.Is(err, io.EOF) {
			return "", false
		}
		if err != nil {
			return "", true
		}

		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)

		src := b.String()
		_, perr := pyparse.ParseProgramInteractive(src)
		if perr == nil {
			// Multi-line blocks finish on a blank line, so an else or
			// elif clause can still be typed.
			if strings.Contains(src, "\n") && strings.TrimSpace(line) != "" {
				continue
			}
			return src, true
		}
		if pyparse.IsIncomplete(perr) {
			continue
		}
		return src, true
	}
}
