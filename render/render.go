package render

import (
	"bytes"
	"context"
	"strings"
	"unicode"

	"github.com/c360/varmsg/directory"
	"github.com/c360/varmsg/errors"
	"github.com/c360/varmsg/varcache"
)

// Reader reads the current value of a variable as text
type Reader interface {
	Read(ctx context.Context, v directory.Var) (string, error)
}

// SkipFunc is called for each variable dropped from a message because it no
// longer exists in the directory
type SkipFunc func(v directory.Var, err error)

// Renderer builds one JSON object per call from a body cache
type Renderer struct {
	reader Reader
	onSkip SkipFunc
}

// NewRenderer creates a renderer reading through r. onSkip may be nil.
func NewRenderer(r Reader, onSkip SkipFunc) *Renderer {
	return &Renderer{reader: r, onSkip: onSkip}
}

// Render reads every variable in c in order and writes
//
//	{ "name":"value","[2]other":[1,2]}
//
// followed by a newline. Values that look like JSON arrays or objects are
// emitted unquoted; everything else is quoted without escaping. A variable
// that has vanished is skipped. Any other read failure, or a cancelled ctx,
// aborts the render and nothing is returned.
func (r *Renderer) Render(ctx context.Context, c *varcache.Cache) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	first := true
	for _, v := range c.Vars() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		value, err := r.reader.Read(ctx, v)
		if err != nil {
			if errors.Is(err, errors.ErrNotFound) {
				if r.onSkip != nil {
					r.onSkip(v, err)
				}
				continue
			}
			return nil, errors.Wrap(err, "Renderer", "Render", "read "+v.Key())
		}

		if first {
			buf.WriteByte(' ')
			first = false
		} else {
			buf.WriteByte(',')
		}
		writeEntry(&buf, v, value)
	}

	buf.WriteString("}\n")
	return buf.Bytes(), nil
}

func writeEntry(buf *bytes.Buffer, v directory.Var, value string) {
	buf.WriteByte('"')
	buf.WriteString(v.Key())
	buf.WriteString(`":`)
	if IsJSON(value) {
		buf.WriteString(value)
		return
	}
	buf.WriteByte('"')
	buf.WriteString(value)
	buf.WriteByte('"')
}

// IsJSON reports whether the first and last non-space characters of value
// are a matching [ ] or { } pair. The contents are not parsed.
func IsJSON(value string) bool {
	s := strings.TrimFunc(value, unicode.IsSpace)
	if len(s) < 2 {
		return false
	}
	first, last := s[0], s[len(s)-1]
	return (first == '[' && last == ']') || (first == '{' && last == '}')
}
