package control

import (
	"errors"
	"fmt"
	"strings"
)

// Verb is a control command verb.
type Verb string

const (
	VerbStart Verb = "start"
	VerbStop  Verb = "stop"
)

var (
	// ErrEmptyCommand is returned for blank lines.
	ErrEmptyCommand = errors.New("control: empty command")
	// ErrUnknownCommand is returned for verbs other than start and stop.
	ErrUnknownCommand = errors.New("control: unknown command")
	// ErrMissingDriver is returned when no driver follows the verb.
	ErrMissingDriver = errors.New("control: missing driver name")
	// ErrUnrepresentable is returned for commands whose fields cannot be
	// written as a control line: double quotes or line breaks anywhere, or
	// whitespace in a local driver name.
	ErrUnrepresentable = errors.New("control: command cannot be written as a control line")
)

// Command is one parsed control line.
type Command struct {
	Verb   Verb   `json:"verb"`
	Driver string `json:"driver"`
	// Name is the device name (-n). For start it is exported to the driver
	// as INDIDEV; for stop it selects the instance serving that device.
	Name     string `json:"name,omitempty"`
	Config   string `json:"config,omitempty"`
	Skeleton string `json:"skeleton,omitempty"`
	Prefix   string `json:"prefix,omitempty"`
}

// Remote reports whether the command names a remote driver.
func (c Command) Remote() bool {
	return strings.Contains(c.Driver, "@")
}

// Validate reports ErrUnrepresentable when String would not parse back to c.
func (c Command) Validate() error {
	if c.Driver == "" {
		return ErrMissingDriver
	}
	if !c.Remote() && strings.ContainsAny(c.Driver, " \t") {
		return fmt.Errorf("%w: driver %q contains whitespace", ErrUnrepresentable, c.Driver)
	}
	for _, v := range []string{c.Driver, c.Name, c.Config, c.Skeleton, c.Prefix} {
		if strings.ContainsAny(v, "\"\r\n") {
			return fmt.Errorf("%w: %q", ErrUnrepresentable, v)
		}
	}
	return nil
}

// String renders the command in the line format Parse accepts. Commands
// that fail Validate do not round-trip.
func (c Command) String() string {
	var b strings.Builder
	b.WriteString(string(c.Verb))
	b.WriteByte(' ')
	b.WriteString(c.Driver)
	if c.Remote() {
		return b.String()
	}
	for _, opt := range []struct {
		flag  string
		value string
	}{
		{"-n", c.Name},
		{"-c", c.Config},
		{"-s", c.Skeleton},
		{"-p", c.Prefix},
	} {
		if opt.value == "" {
			continue
		}
		fmt.Fprintf(&b, ` %s "%s"`, opt.flag, opt.value)
	}
	return b.String()
}

// Parse parses one control line.
func Parse(line string) (Command, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Command{}, ErrEmptyCommand
	}

	verb, rest, _ := strings.Cut(line, " ")
	cmd := Command{Verb: Verb(verb)}
	if cmd.Verb != VerbStart && cmd.Verb != VerbStop {
		return Command{}, fmt.Errorf("%w: %q", ErrUnknownCommand, verb)
	}
	rest = strings.TrimSpace(rest)

	if strings.Contains(rest, "@") {
		cmd.Driver = strings.TrimSpace(strings.ReplaceAll(rest, `"`, ""))
		if cmd.Driver == "" {
			return Command{}, ErrMissingDriver
		}
		return cmd, nil
	}

	fields, err := splitQuoted(rest)
	if err != nil {
		return Command{}, err
	}
	if len(fields) == 0 {
		return Command{}, ErrMissingDriver
	}
	cmd.Driver = fields[0]

	args := fields[1:]
	for i := 0; i < len(args); i++ {
		flag := args[i]
		if len(flag) != 2 || flag[0] != '-' {
			return Command{}, fmt.Errorf("control: unexpected argument %q", flag)
		}
		if i+1 >= len(args) {
			return Command{}, fmt.Errorf("control: option %s needs a value", flag)
		}
		i++
		value := args[i]

		switch flag[1] {
		case 'n':
			cmd.Name = value
		case 'c':
			cmd.Config = value
		case 's':
			cmd.Skeleton = value
		case 'p':
			cmd.Prefix = value
		default:
			// Unknown options are skipped along with their value.
		}
	}

	if err := cmd.Validate(); err != nil {
		return Command{}, err
	}
	return cmd, nil
}

// splitQuoted splits s on spaces, keeping double-quoted runs together.
func splitQuoted(s string) ([]string, error) {
	var (
		fields  []string
		cur     strings.Builder
		inQuote bool
		started bool
	)

	for _, r := range s {
		switch {
		case r == '"':
			inQuote = !inQuote
			started = true
		case (r == ' ' || r == '\t') && !inQuote:
			if started {
				fields = append(fields, cur.String())
				cur.Reset()
				started = false
			}
		default:
			cur.WriteRune(r)
			started = true
		}
	}
	if inQuote {
		return nil, errors.New("control: unterminated quote")
	}
	if started {
		fields = append(fields, cur.String())
	}
	return fields, nil
}
