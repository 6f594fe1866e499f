package broker

import (
	"errors"
	"testing"

	"github.com/nerrad567/indihub/internal/control"
)

func TestStartCommandLocal(t *testing.T) {
	b, dialer, _ := newTestBroker(t, nil)
	cmd := control.Command{
		Verb:     control.VerbStart,
		Driver:   "indi_simulator_ccd",
		Name:     "CCD Simulator",
		Config:   "/etc/indi/ccd.xml",
		Skeleton: "/usr/share/indi/ccd_sk.xml",
		Prefix:   "/opt/indi",
	}
	if err := b.execute(cmd); err != nil {
		t.Fatalf("execute() error = %v", err)
	}
	runNext(t, b)
	t.Cleanup(func() { (<-dialer.peers).Close() })

	d := b.findDriver("indi_simulator_ccd")
	if d == nil || d.state != StateActive {
		t.Fatalf("driver = %+v, want active", d)
	}
	specs := dialer.localSpecs()
	if len(specs) != 1 {
		t.Fatalf("opened %d local drivers, want 1", len(specs))
	}
	got := specs[0]
	if got.Device != cmd.Name || got.Config != cmd.Config || got.Skeleton != cmd.Skeleton || got.Prefix != cmd.Prefix {
		t.Errorf("spec = %+v, want options from %s", got, cmd)
	}

	// Starting a running driver again is a no-op.
	if err := b.execute(cmd); err != nil {
		t.Fatalf("second execute() error = %v", err)
	}
	if n := len(b.drivers); n != 1 {
		t.Errorf("len(drivers) = %d, want 1", n)
	}
}

func TestStartCommandSkipsRestartDelay(t *testing.T) {
	b, dialer, _ := newTestBroker(t, nil)
	d := addActiveDriver(b, "indi_ccd", KindLocal, "Camera1")
	b.shutdownDriver(d, true, "end of stream")

	if err := b.execute(control.Command{Verb: control.VerbStart, Driver: "indi_ccd"}); err != nil {
		t.Fatalf("execute() error = %v", err)
	}
	if b.restarts.contains(d) {
		t.Error("driver still waiting on the restart list")
	}
	if d.state != StateStarting || d.restarts != 1 {
		t.Errorf("state = %v restarts = %d, want starting 1", d.state, d.restarts)
	}
	runNext(t, b)
	(<-dialer.peers).Close()
}

func TestStartCommandBadRemote(t *testing.T) {
	b, _, _ := newTestBroker(t, nil)
	err := b.execute(control.Command{Verb: control.VerbStart, Driver: "Mount@host:bad"})
	if !errors.Is(err, ErrBadRemoteSpec) {
		t.Errorf("error = %v, want ErrBadRemoteSpec", err)
	}
	if b.aliveDrivers() != 0 {
		t.Errorf("aliveDrivers() = %d, want 0", b.aliveDrivers())
	}
}

func TestStopCommand(t *testing.T) {
	tests := []struct {
		name      string
		cmd       control.Command
		pending   bool
		wantErr   error
		wantState DriverState
	}{
		{
			name:      "stop by driver name",
			cmd:       control.Command{Verb: control.VerbStop, Driver: "indi_ccd"},
			wantState: StateInactive,
		},
		{
			name:      "stop by serving device",
			cmd:       control.Command{Verb: control.VerbStop, Driver: "indi_ccd", Name: "Camera1"},
			wantState: StateInactive,
		},
		{
			name:      "device filter that does not match",
			cmd:       control.Command{Verb: control.VerbStop, Driver: "indi_ccd", Name: "Camera2"},
			wantErr:   ErrDriverNotFound,
			wantState: StateActive,
		},
		{
			name:      "unknown driver",
			cmd:       control.Command{Verb: control.VerbStop, Driver: "indi_mount"},
			wantErr:   ErrDriverNotFound,
			wantState: StateActive,
		},
		{
			name:      "pending restart ignores the device filter",
			cmd:       control.Command{Verb: control.VerbStop, Driver: "indi_ccd", Name: "Camera2"},
			pending:   true,
			wantState: StateInactive,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, _, _ := newTestBroker(t, nil)
			d := addActiveDriver(b, "indi_ccd", KindLocal, "Camera1")
			if tt.pending {
				b.shutdownDriver(d, true, "end of stream")
			}

			err := b.execute(tt.cmd)
			if !errors.Is(err, tt.wantErr) || (tt.wantErr == nil && err != nil) {
				t.Fatalf("execute() error = %v, want %v", err, tt.wantErr)
			}
			if d.state != tt.wantState {
				t.Errorf("state = %v, want %v", d.state, tt.wantState)
			}
			if b.restarts.contains(d) {
				t.Error("driver left on the restart list")
			}
		})
	}
}

func TestExecuteUnknownVerb(t *testing.T) {
	b, _, _ := newTestBroker(t, nil)
	if err := b.execute(control.Command{Verb: "reload", Driver: "x"}); !errors.Is(err, control.ErrUnknownCommand) {
		t.Errorf("error = %v, want ErrUnknownCommand", err)
	}
}
