package protocol

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrMalformed wraps every syntax error reported by a Decoder.
var ErrMalformed = errors.New("protocol: malformed element")

// Decoder reads successive top-level elements from a byte stream.
type Decoder struct {
	d *xml.Decoder
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	d := xml.NewDecoder(r)
	d.Strict = true
	return &Decoder{d: d}
}

// Next returns the next complete top-level element. It returns io.EOF when
// the stream ends cleanly between elements, and an error wrapping
// ErrMalformed for anything that is not a well-formed element.
func (dec *Decoder) Next() (*Element, error) {
	for {
		tok, err := dec.d.Token()
		if err != nil {
			return nil, dec.wrap(err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			return dec.element(t)
		case xml.CharData:
			if len(strings.TrimSpace(string(t))) != 0 {
				return nil, fmt.Errorf("%w: stray text %q", ErrMalformed, truncate(string(t)))
			}
		case xml.EndElement:
			return nil, fmt.Errorf("%w: unexpected </%s>", ErrMalformed, t.Name.Local)
		default:
			// Comments, processing instructions and directives between
			// elements are ignored.
		}
	}
}

func (dec *Decoder) element(start xml.StartElement) (*Element, error) {
	e := &Element{Tag: start.Name.Local}
	if len(start.Attr) > 0 {
		e.Attrs = make([]Attr, 0, len(start.Attr))
		for _, a := range start.Attr {
			e.Attrs = append(e.Attrs, Attr{Name: a.Name.Local, Value: a.Value})
		}
	}

	var text strings.Builder
	for {
		tok, err := dec.d.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("%w: stream ended inside <%s>", ErrMalformed, e.Tag)
			}
			return nil, dec.wrap(err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			child, err := dec.element(t)
			if err != nil {
				return nil, err
			}
			e.Children = append(e.Children, child)
		case xml.CharData:
			text.Write(t)
		case xml.EndElement:
			if len(e.Children) == 0 {
				e.Text = text.String()
			} else if s := strings.TrimSpace(text.String()); s != "" {
				e.Text = s
			}
			return e, nil
		}
	}
}

func (dec *Decoder) wrap(err error) error {
	if errors.Is(err, io.EOF) {
		return io.EOF
	}
	var syntax *xml.SyntaxError
	if errors.As(err, &syntax) {
		return fmt.Errorf("%w: line %d: %s", ErrMalformed, syntax.Line, syntax.Msg)
	}
	return err
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 32 {
		return s[:32] + "..."
	}
	return s
}
