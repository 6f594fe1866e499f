package protocol

import (
	"fmt"
	"strings"
)

// BlobMode controls whether BLOB elements are delivered to a consumer.
type BlobMode int

const (
	// BlobNever delivers everything except BLOBs.
	BlobNever BlobMode = iota
	// BlobAlso delivers BLOBs along with everything else.
	BlobAlso
	// BlobOnly delivers BLOBs and nothing else.
	BlobOnly
)

// String returns the wire spelling of the mode.
func (m BlobMode) String() string {
	switch m {
	case BlobNever:
		return "Never"
	case BlobAlso:
		return "Also"
	case BlobOnly:
		return "Only"
	default:
		return fmt.Sprintf("BlobMode(%d)", int(m))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m BlobMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// ParseBlobMode parses enableBLOB content. Surrounding whitespace is
// ignored; any other value is rejected.
func ParseBlobMode(s string) (BlobMode, bool) {
	switch strings.TrimSpace(s) {
	case "Never":
		return BlobNever, true
	case "Also":
		return BlobAlso, true
	case "Only":
		return BlobOnly, true
	default:
		return BlobNever, false
	}
}
