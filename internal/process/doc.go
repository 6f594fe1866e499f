// Package process runs local driver executables whose stdin and stdout carry
// the protocol stream.
//
// A Process is started once and stopped once; the broker decides whether
// and when a driver is relaunched. Each driver runs in its own process
// group so that Stop reaches any helpers it forks.
//
// Features:
//   - stdin/stdout exposed as an io.ReadWriteCloser for the broker
//   - stderr captured line by line into the structured log
//   - SIGTERM to the process group, SIGKILL after a grace period
//   - status and statistics for the HTTP API
//
// Example usage:
//
//	p := process.New(process.Config{
//	    Name:   "indi_simulator_ccd",
//	    Binary: "indi_simulator_ccd",
//	    Env:    []string{"INDIDEV=CCD Simulator"},
//	})
//	p.SetLogger(logger)
//
//	if err := p.Start(ctx); err != nil {
//	    return err
//	}
//	defer p.Close()
package process
