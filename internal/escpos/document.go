package escpos

// Document is an ordered, immutable sequence of commands forming one
// transmittable unit.
type Document struct {
	cmds []Command
}

// NewDocument copies cmds so later changes by the caller do not leak in.
func NewDocument(cmds ...Command) Document {
	out := make([]Command, 0, len(cmds))
	for _, c := range cmds {
		out = append(out, append(Command(nil), c...))
	}
	return Document{cmds: out}
}

// Concat joins documents in order, inserting sep between neighbours.
func Concat(sep Command, docs ...Document) Document {
	var cmds []Command
	for i, d := range docs {
		if i > 0 && len(sep) > 0 {
			cmds = append(cmds, sep)
		}
		cmds = append(cmds, d.cmds...)
	}
	return NewDocument(cmds...)
}

// Commands returns a copy of the command list.
func (d Document) Commands() []Command {
	out := make([]Command, len(d.cmds))
	for i, c := range d.cmds {
		out[i] = append(Command(nil), c...)
	}
	return out
}

func (d Document) Len() int {
	n := 0
	for _, c := range d.cmds {
		n += len(c)
	}
	return n
}

func (d Document) Empty() bool {
	return d.Len() == 0
}

// Bytes flattens the document into the wire stream.
func (d Document) Bytes() []byte {
	out := make([]byte, 0, d.Len())
	for _, c := range d.cmds {
		out = append(out, c...)
	}
	return out
}
