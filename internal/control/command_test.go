package control

import (
	"errors"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		line string
		want Command
	}{
		{
			name: "bare start",
			line: "start indi_simulator_ccd",
			want: Command{Verb: VerbStart, Driver: "indi_simulator_ccd"},
		},
		{
			name: "start with every option",
			line: `start indi_sbig_ccd -n "SBIG CCD" -c "/etc/sbig.xml" -s "/usr/share/sk.xml" -p "pre"`,
			want: Command{
				Verb:     VerbStart,
				Driver:   "indi_sbig_ccd",
				Name:     "SBIG CCD",
				Config:   "/etc/sbig.xml",
				Skeleton: "/usr/share/sk.xml",
				Prefix:   "pre",
			},
		},
		{
			name: "options in any order",
			line: `start drv -p "x" -n "Dev"`,
			want: Command{Verb: VerbStart, Driver: "drv", Name: "Dev", Prefix: "x"},
		},
		{
			name: "unknown option skipped",
			line: `start drv -z "ignored" -n "Dev"`,
			want: Command{Verb: VerbStart, Driver: "drv", Name: "Dev"},
		},
		{
			name: "stop with device",
			line: `stop indi_simulator_ccd -n "CCD Simulator"`,
			want: Command{Verb: VerbStop, Driver: "indi_simulator_ccd", Name: "CCD Simulator"},
		},
		{
			name: "remote driver keeps the whole remainder without quotes",
			line: `start "Telescope Simulator"@remote.example:7625`,
			want: Command{Verb: VerbStart, Driver: "Telescope Simulator@remote.example:7625"},
		},
		{
			name: "wildcard remote",
			line: "stop @10.0.0.2",
			want: Command{Verb: VerbStop, Driver: "@10.0.0.2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.line)
			if err != nil {
				t.Fatalf("Parse(%q) error = %v", tt.line, err)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %+v, want %+v", tt.line, got, tt.want)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		wantErr error
	}{
		{"empty", "   ", ErrEmptyCommand},
		{"unknown verb", "restart drv", ErrUnknownCommand},
		{"no driver", "start", ErrMissingDriver},
		{"unterminated quote", `start drv -n "Dev`, nil},
		{"dangling option", "start drv -n", nil},
		{"stray positional", "start drv extra", nil},
		{"quoted local driver with space", `start "indi sim"`, ErrUnrepresentable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.line)
			if err == nil {
				t.Fatalf("Parse(%q) expected error", tt.line)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Parse(%q) error = %v, want %v", tt.line, err, tt.wantErr)
			}
		})
	}
}

func TestCommandStringParsesBack(t *testing.T) {
	cmds := []Command{
		{Verb: VerbStart, Driver: "indi_eqmod", Name: "EQMod Mount", Config: "/tmp/eq.xml"},
		{Verb: VerbStop, Driver: "indi_eqmod"},
		{Verb: VerbStart, Driver: "Camera1@host:7624"},
		{Verb: VerbStart, Driver: "Telescope Simulator@remote.example:7625"},
		{Verb: VerbStart, Driver: "indi_sbig_ccd", Name: "SBIG CCD", Config: "/etc/sbig.xml", Skeleton: "/usr/share/sk.xml", Prefix: "pre"},
	}

	for _, c := range cmds {
		if err := c.Validate(); err != nil {
			t.Fatalf("Validate(%+v) error = %v", c, err)
		}
		got, err := Parse(c.String())
		if err != nil {
			t.Fatalf("Parse(%q) error = %v", c.String(), err)
		}
		if got != c {
			t.Errorf("Parse(%q) = %+v, want %+v", c.String(), got, c)
		}
	}
}

func TestCommandValidate(t *testing.T) {
	tests := []struct {
		name    string
		cmd     Command
		wantErr error
	}{
		{"plain", Command{Verb: VerbStart, Driver: "indi_eqmod", Name: "EQMod Mount"}, nil},
		{"remote with space", Command{Verb: VerbStart, Driver: "Telescope Simulator@host"}, nil},
		{"no driver", Command{Verb: VerbStart}, ErrMissingDriver},
		{"quote in name", Command{Verb: VerbStart, Driver: "indi_eqmod", Name: `EQ"Mod`}, ErrUnrepresentable},
		{"quote in config", Command{Verb: VerbStart, Driver: "indi_eqmod", Config: `/tmp/"x".xml`}, ErrUnrepresentable},
		{"newline in prefix", Command{Verb: VerbStart, Driver: "indi_eqmod", Prefix: "a\nstop b"}, ErrUnrepresentable},
		{"space in local driver", Command{Verb: VerbStop, Driver: "indi eqmod"}, ErrUnrepresentable},
		{"quote in remote driver", Command{Verb: VerbStart, Driver: `"Mount"@host`}, ErrUnrepresentable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cmd.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				got, perr := Parse(tt.cmd.String())
				if perr != nil || got != tt.cmd {
					t.Errorf("Parse(%q) = %+v, %v; want %+v", tt.cmd.String(), got, perr, tt.cmd)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
