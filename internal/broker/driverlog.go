package broker

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nerrad567/indihub/internal/protocol"
)

// timestampLayout matches the protocol's timestamp attribute.
const timestampLayout = "2006-01-02T15:04:05"

// driverLog appends driver "message" attributes to per-day files named
// after the date part of the element timestamp.
type driverLog struct {
	dir string
	now func() time.Time
}

func (l *driverLog) record(el *protocol.Element, device string) error {
	msg := el.Attr("message")
	if msg == "" {
		return nil
	}

	ts := el.Attr("timestamp")
	if ts == "" {
		ts = l.now().UTC().Format(timestampLayout)
	}

	day := ts
	if len(day) > 10 {
		day = day[:10]
	}
	if strings.ContainsAny(day, `/\`) || day == "." || day == ".." {
		day = l.now().UTC().Format(time.DateOnly)
	}

	path := filepath.Join(l.dir, day+".islog")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	if _, err := fmt.Fprintf(f, "%s: %s: %s\n", ts, device, msg); err != nil {
		f.Close() //nolint:errcheck // write error takes precedence
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}
