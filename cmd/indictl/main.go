// indictl sends start and stop commands to a running indihub through its
// control FIFO.
//
// With arguments it sends one command and exits:
//
//	indictl -f /tmp/indififo start indi_simulator_ccd -n "CCD Simulator"
//
// Without arguments it opens an interactive prompt.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/pflag"

	"github.com/nerrad567/indihub/internal/control"
)

// fifoEnv names the control FIFO when --fifo is not given.
const fifoEnv = "INDIHUB_CONTROL_FIFO"

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, pflag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	fs := pflag.NewFlagSet("indictl", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.SetInterspersed(false)
	fifo := fs.StringP("fifo", "f", os.Getenv(fifoEnv), "indihub control FIFO")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: indictl [-f fifo] [start|stop driver [options]]\n\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *fifo == "" {
		fs.Usage()
		return fmt.Errorf("no control FIFO given (use --fifo or $%s)", fifoEnv)
	}

	c := &console{fifo: *fifo, send: control.Send, out: stdout}

	if fs.NArg() > 0 {
		return c.sendLine(joinArgs(fs.Args()))
	}
	return c.interactive()
}

// joinArgs rebuilds a control line from shell words, quoting any word that
// contains spaces so Parse sees it as one token.
func joinArgs(args []string) string {
	words := make([]string, len(args))
	for i, a := range args {
		if strings.ContainsAny(a, " \t") {
			a = `"` + a + `"`
		}
		words[i] = a
	}
	return strings.Join(words, " ")
}

// console validates lines and writes them to the FIFO.
type console struct {
	fifo string
	send func(path string, cmd control.Command) error
	out  io.Writer
}

func (c *console) sendLine(line string) error {
	cmd, err := control.Parse(line)
	if err != nil {
		return err
	}
	if err := c.send(c.fifo, cmd); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "sent: %s\n", cmd)
	return nil
}

// exec handles one prompt line. It returns false when the session should
// end.
func (c *console) exec(line string) bool {
	input := strings.TrimSpace(line)
	if input == "" {
		return true
	}

	switch strings.ToLower(strings.Fields(input)[0]) {
	case "help", "?":
		c.printHelp()
	case "quit", "exit", "q":
		return false
	default:
		if err := c.sendLine(input); err != nil {
			fmt.Fprintf(c.out, "error: %v\n", err)
		}
	}
	return true
}

func (c *console) interactive() error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "indictl> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()
	c.out = rl.Stdout()

	c.printHelp()
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if err != nil {
			return nil
		}
		if !c.exec(line) {
			return nil
		}
	}
}

func (c *console) printHelp() {
	fmt.Fprintf(c.out, `
indihub control (%s)
  start <driver> [-n name] [-c config] [-s skeleton] [-p prefix]
                       - start a local driver
  start [device]@host[:port]
                       - chain a remote indihub
  stop <driver> [-n name]
                       - stop a driver, or the instance serving device <name>
  help                 - show this help
  exit                 - leave

`, c.fifo)
}
