// Package script runs transaction scripts against a LibraryManager. A script holds
// one command per line; each line is echoed, executed, and on failure reported as
// "** <message>" before the next line runs.
package script

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	log "github.com/sirupsen/logrus"

	"bibliotheque/library"
)

// Summary counts what a Run did.
type Summary struct {
	Lines    int  // lines read, including blanks and comments
	Executed int  // commands executed
	Failed   int  // commands that reported an error
	Stopped  bool // an exit command ended the script early
}

// Interpreter executes script lines one at a time.
type Interpreter struct {
	lm     *library.LibraryManager
	out    io.Writer
	logger *log.Entry
	echo   bool
}

// Option customises an Interpreter.
type Option func(*Interpreter)

// WithLogger sets the logger used for per-line diagnostics.
func WithLogger(logger *log.Entry) Option {
	return func(in *Interpreter) {
		if logger != nil {
			in.logger = logger
		}
	}
}

// WithEcho controls whether each line is written back before it runs. Defaults to true.
func WithEcho(echo bool) Option {
	return func(in *Interpreter) { in.echo = echo }
}

// New returns an interpreter writing results to out.
func New(lm *library.LibraryManager, out io.Writer, opts ...Option) *Interpreter {
	in := &Interpreter{
		lm:     lm,
		out:    out,
		logger: log.New().WithField("component", "script"),
		echo:   true,
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Run executes every line of r until EOF or an exit command. Command failures are
// reported on the output and counted; only read errors are returned.
func (in *Interpreter) Run(ctx context.Context, r io.Reader) (Summary, error) {
	var sum Summary
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		sum.Lines++

		stop, ran, err := in.Exec(ctx, sc.Text())
		if ran {
			sum.Executed++
		}
		if err != nil {
			sum.Failed++
		}
		if stop {
			sum.Stopped = true
			break
		}
	}
	if err := sc.Err(); err != nil {
		return sum, fmt.Errorf("read script: %w", err)
	}
	return sum, nil
}

// Exec runs a single line. It reports whether the line asked to stop, whether a
// command was executed, and the command's error, which has already been printed.
func (in *Interpreter) Exec(ctx context.Context, line string) (stop, ran bool, err error) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return false, false, nil
	}
	if in.echo {
		fmt.Fprintln(in.out, trimmed)
	}
	if strings.HasPrefix(trimmed, "--") {
		return false, false, nil
	}

	tokens, err := tokenize(trimmed)
	if err != nil {
		in.report(trimmed, err)
		return false, true, err
	}
	if len(tokens) == 0 {
		err := fmt.Errorf("%w: empty command", library.ErrValidation)
		in.report(trimmed, err)
		return false, true, err
	}

	name := tokens[0]
	if isExit(name) {
		return true, false, nil
	}

	cmd, ok := lookup(name)
	if !ok {
		err := fmt.Errorf("%w: unknown command %q", library.ErrValidation, name)
		in.report(trimmed, err)
		return false, true, err
	}

	args := tokens[1:]
	if len(args) < cmd.minArgs || len(args) > cmd.maxArgs {
		err := fmt.Errorf("%w: usage: %s %s", library.ErrValidation, name, cmd.usage)
		in.report(trimmed, err)
		return false, true, err
	}

	if err := cmd.run(ctx, in, args); err != nil {
		in.report(trimmed, err)
		return false, true, err
	}
	in.logger.WithField("command", name).Debug("command executed")
	return false, true, nil
}

func (in *Interpreter) report(line string, err error) {
	fmt.Fprintf(in.out, "** %v\n", err)

	entry := in.logger.WithField("line", line).WithError(err)
	if library.IsRuleViolation(err) {
		entry.Debug("command rejected")
		return
	}
	entry.Warn("command failed")
}

func isExit(name string) bool {
	switch strings.ToLower(name) {
	case "exit", "quitter":
		return true
	}
	return false
}
