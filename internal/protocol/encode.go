package protocol

import "strings"

var (
	textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	attrEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", "'", "&apos;")
)

// Marshal serialises the element followed by a newline, ready to queue.
func (e *Element) Marshal() []byte {
	var b strings.Builder
	e.write(&b)
	b.WriteByte('\n')
	return []byte(b.String())
}

// String returns the serialised element without the trailing newline.
func (e *Element) String() string {
	var b strings.Builder
	e.write(&b)
	return b.String()
}

func (e *Element) write(b *strings.Builder) {
	b.WriteByte('<')
	b.WriteString(e.Tag)
	for _, a := range e.Attrs {
		b.WriteByte(' ')
		b.WriteString(a.Name)
		b.WriteString("='")
		attrEscaper.WriteString(b, a.Value) //nolint:errcheck // strings.Builder never fails
		b.WriteByte('\'')
	}

	if len(e.Children) == 0 && e.Text == "" {
		b.WriteString("/>")
		return
	}
	b.WriteByte('>')

	if len(e.Children) > 0 {
		b.WriteByte('\n')
		for _, c := range e.Children {
			b.WriteString("  ")
			c.write(b)
			b.WriteByte('\n')
		}
	}
	textEscaper.WriteString(b, e.Text) //nolint:errcheck // strings.Builder never fails

	b.WriteString("</")
	b.WriteString(e.Tag)
	b.WriteByte('>')
}
