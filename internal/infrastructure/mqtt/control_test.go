package mqtt

import (
	"errors"
	"testing"

	"github.com/nerrad567/indihub/internal/control"
)

func TestControlHandler(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    []control.Command
		wantErr error
	}{
		{
			name:    "single start",
			payload: `start indi_simulator_ccd -n "CCD Simulator"`,
			want:    []control.Command{{Verb: control.VerbStart, Driver: "indi_simulator_ccd", Name: "CCD Simulator"}},
		},
		{
			name:    "several lines",
			payload: "start indi_lx200\n\nstop indi_lx200\n",
			want: []control.Command{
				{Verb: control.VerbStart, Driver: "indi_lx200"},
				{Verb: control.VerbStop, Driver: "indi_lx200"},
			},
		},
		{
			name:    "remote driver",
			payload: "start Telescope@observatory:7625",
			want:    []control.Command{{Verb: control.VerbStart, Driver: "Telescope@observatory:7625"}},
		},
		{
			name:    "bad line does not block the rest",
			payload: "restart indi_lx200\nstop indi_eqmod",
			want:    []control.Command{{Verb: control.VerbStop, Driver: "indi_eqmod"}},
			wantErr: control.ErrUnknownCommand,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []control.Command
			handler := ControlHandler(func(cmd control.Command) { got = append(got, cmd) })

			err := handler("indihub/control", []byte(tt.payload))
			if tt.wantErr == nil && err != nil {
				t.Fatalf("handler error = %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("handler error = %v, want %v", err, tt.wantErr)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("submitted %+v, want %+v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("command[%d] = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}
