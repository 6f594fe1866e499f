package control

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFIFODeliversCommands(t *testing.T) {
	path := filepath.Join(t.TempDir(), "indififo")
	fifo := NewFIFO(path)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan Command, 4)
	done := make(chan error, 1)
	go func() {
		done <- fifo.Run(ctx, func(c Command) { got <- c })
	}()

	// Wait for the pipe to exist before writing.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := os.Stat(path); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("fifo was not created")
		}
		time.Sleep(5 * time.Millisecond)
	}

	want := Command{Verb: VerbStart, Driver: "indi_simulator_ccd", Name: "CCD Simulator"}
	if err := Send(path, Command{Verb: "bogus", Driver: "x"}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if err := Send(path, want); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	select {
	case c := <-got:
		if c != want {
			t.Errorf("received %+v, want %+v", c, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("command not delivered")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}
