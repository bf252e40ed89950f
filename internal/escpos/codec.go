package escpos

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// DefaultCodePage is what ESC/POS printers select after ESC @.
const DefaultCodePage = "cp437"

var codePages = map[string]*charmap.Charmap{
	"cp437":      charmap.CodePage437,
	"cp850":      charmap.CodePage850,
	"cp852":      charmap.CodePage852,
	"cp858":      charmap.CodePage858,
	"cp866":      charmap.CodePage866,
	"cp1250":     charmap.Windows1250,
	"cp1251":     charmap.Windows1251,
	"cp1252":     charmap.Windows1252,
	"iso8859-2":  charmap.ISO8859_2,
	"iso8859-15": charmap.ISO8859_15,
}

// Codec turns text into the single-byte code page the printer is set to.
type Codec struct {
	name string
	cm   *charmap.Charmap
}

// NewCodec resolves a code page by name. "utf8" disables conversion.
func NewCodec(name string) (*Codec, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		key = DefaultCodePage
	}

	if key == "utf8" || key == "utf-8" {
		return &Codec{name: "utf8"}, nil
	}

	cm, ok := codePages[key]
	if !ok {
		return nil, fmt.Errorf("escpos: unknown code page %q", name)
	}

	return &Codec{name: key, cm: cm}, nil
}

func (c *Codec) Name() string {
	return c.name
}

// Encode converts s. Characters missing from the code page are replaced.
func (c *Codec) Encode(s string) []byte {
	if c == nil || c.cm == nil {
		return []byte(s)
	}

	// Encoders carry state, so each call gets its own.
	enc := encoding.ReplaceUnsupported(c.cm.NewEncoder())
	out, _, err := transform.Bytes(enc, []byte(s))
	if err != nil {
		// ReplaceUnsupported only fails on invalid UTF-8; send what we have.
		return []byte(s)
	}
	return out
}

// Text encodes s as a command.
func (c *Codec) Text(s string) Command {
	return Command(c.Encode(s))
}
