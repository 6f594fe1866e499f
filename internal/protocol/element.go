package protocol

import "strings"

// Version is the protocol version the broker announces.
const Version = "1.7"

// Tags and tag prefixes the broker routes on.
const (
	TagGetProperties = "getProperties"
	TagEnableBLOB    = "enableBLOB"
	TagSetBLOBVector = "setBLOBVector"
	TagDelProperty   = "delProperty"
	TagOneBLOB       = "oneBLOB"

	PrefixNew = "new"
	PrefixSet = "set"
)

// Attr is a single element attribute.
type Attr struct {
	Name  string
	Value string
}

// Element is one decoded protocol element.
type Element struct {
	Tag      string
	Attrs    []Attr
	Children []*Element
	// Text is the character data of a leaf element. For elements with
	// children, whitespace between children is not kept.
	Text string
}

// New returns an element with the given tag and attribute name/value pairs.
func New(tag string, kv ...string) *Element {
	e := &Element{Tag: tag}
	for i := 0; i+1 < len(kv); i += 2 {
		e.Attrs = append(e.Attrs, Attr{Name: kv[i], Value: kv[i+1]})
	}
	return e
}

// Attr returns the value of the named attribute or "" if absent.
func (e *Element) Attr(name string) string {
	for _, a := range e.Attrs {
		if a.Name == name {
			return a.Value
		}
	}
	return ""
}

// SetAttr replaces or appends an attribute.
func (e *Element) SetAttr(name, value string) {
	for i := range e.Attrs {
		if e.Attrs[i].Name == name {
			e.Attrs[i].Value = value
			return
		}
	}
	e.Attrs = append(e.Attrs, Attr{Name: name, Value: value})
}

// Device returns the device attribute.
func (e *Element) Device() string { return e.Attr("device") }

// Name returns the property name attribute.
func (e *Element) Name() string { return e.Attr("name") }

// IsBLOB reports whether the element carries BLOB data.
func (e *Element) IsBLOB() bool { return e.Tag == TagSetBLOBVector }

// IsStreamBLOB reports whether any oneBLOB child has a format containing
// "stream". Such frames may be dropped for slow clients.
func (e *Element) IsStreamBLOB() bool {
	for _, c := range e.Children {
		if c.Tag != TagOneBLOB {
			continue
		}
		if strings.Contains(c.Attr("format"), "stream") {
			return true
		}
	}
	return false
}

// GetProperties builds an announce request, optionally scoped to a device.
// Use "*" to ask a chained server for everything it forwards.
func GetProperties(device string) *Element {
	if device == "" {
		return New(TagGetProperties, "version", Version)
	}
	return New(TagGetProperties, "device", device, "version", Version)
}

// DelProperty builds a device removal notice.
func DelProperty(device string) *Element {
	return New(TagDelProperty, "device", device)
}
