package broker

import (
	"io"
	"time"

	"github.com/nerrad567/indihub/internal/message"
	"github.com/nerrad567/indihub/internal/protocol"
)

// Scope is how much of the property stream a client asked for.
type Scope int

const (
	// ScopeListed limits the client to its recorded interests.
	ScopeListed Scope = iota
	// ScopeAll is a plain client that asked for every property.
	ScopeAll
	// ScopeChained is another broker forwarding for its own clients.
	ScopeChained
)

// String returns a short name for the scope.
func (s Scope) String() string {
	switch s {
	case ScopeAll:
		return "all"
	case ScopeChained:
		return "chained"
	default:
		return "listed"
	}
}

// Property is a (device, name) pair with a BLOB mode. An empty Name covers
// the whole device. It records both client interests and driver snoops.
type Property struct {
	Device   string            `json:"device"`
	Name     string            `json:"name,omitempty"`
	BlobMode protocol.BlobMode `json:"blob_mode"`
}

func (p *Property) matches(device, name string) bool {
	return p.Device == device && (p.Name == "" || p.Name == name)
}

// Client is one connected consumer.
type Client struct {
	ID   string
	Addr string

	conn      io.ReadWriteCloser
	active    bool
	connected time.Time

	scope     Scope
	interests []Property
	blobMode  protocol.BlobMode
	queue     *message.Queue
}

// noteRequest updates interests from an inbound element. A client that
// has named a device never widens to ScopeAll afterwards.
func (c *Client) noteRequest(tag, device, name string, isBlob bool) {
	switch {
	case device == "*" && len(c.interests) == 0:
		c.scope = ScopeChained
	case device != "":
		c.recordInterest(device, name, isBlob)
	case tag == protocol.TagGetProperties && len(c.interests) == 0 && c.scope != ScopeChained:
		c.scope = ScopeAll
	}
}

// recordInterest adds (device, name) unless it is already covered.
func (c *Client) recordInterest(device, name string, isBlob bool) {
	if isBlob {
		for i := range c.interests {
			if c.interests[i].Device == device && c.interests[i].Name == name {
				return
			}
		}
	} else if c.matchesInterest(device, name) {
		return
	}
	c.interests = append(c.interests, Property{Device: device, Name: name, BlobMode: protocol.BlobNever})
}

// matchesInterest reports whether the client wants elements for
// (device, name).
func (c *Client) matchesInterest(device, name string) bool {
	if c.scope != ScopeListed || device == "" {
		return true
	}
	for i := range c.interests {
		if c.interests[i].matches(device, name) {
			return true
		}
	}
	return false
}

// matchesDevice reports whether the client watches any property of device.
// Device removals use it so property-scoped clients hear about them too.
func (c *Client) matchesDevice(device string) bool {
	if c.scope != ScopeListed || device == "" {
		return true
	}
	for i := range c.interests {
		if c.interests[i].Device == device {
			return true
		}
	}
	return false
}

// setBlobMode applies an enableBLOB request. With a property name only that
// property changes; without one the client default and every tracked
// property change. A named property is tracked even if the value is not
// recognised; the mode itself is then left alone.
func (c *Client) setBlobMode(device, name, value string) {
	if name != "" {
		c.recordInterest(device, name, true)
	}
	mode, ok := protocol.ParseBlobMode(value)
	if !ok {
		return
	}

	if name != "" {
		for i := range c.interests {
			if c.interests[i].Device == device && c.interests[i].Name == name {
				c.interests[i].BlobMode = mode
				return
			}
		}
		return
	}

	c.blobMode = mode
	for i := range c.interests {
		c.interests[i].BlobMode = mode
	}
}

// blobModeFor returns the mode that governs a BLOB for (device, name): the
// exact property's mode if tracked, else the client default.
func (c *Client) blobModeFor(device, name string) protocol.BlobMode {
	for i := range c.interests {
		if c.interests[i].Device == device && c.interests[i].Name == name {
			return c.interests[i].BlobMode
		}
	}
	return c.blobMode
}
