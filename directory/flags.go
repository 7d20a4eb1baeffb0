package directory

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/c360/varmsg/errors"
)

// Flags is a bitmask of variable attributes
type Flags uint32

// Known flags
const (
	FlagVolatile Flags = 1 << iota
	FlagReadOnly
	FlagHidden
	FlagDirty
	FlagMetric
	FlagAudit
	FlagTrigger
	FlagPassword
)

var flagNames = []struct {
	flag Flags
	name string
}{
	{FlagVolatile, "volatile"},
	{FlagReadOnly, "readonly"},
	{FlagHidden, "hidden"},
	{FlagDirty, "dirty"},
	{FlagMetric, "metric"},
	{FlagAudit, "audit"},
	{FlagTrigger, "trigger"},
	{FlagPassword, "password"},
}

// ParseFlags decodes a comma separated list of flag names. Names are
// case-insensitive and surrounding blanks are ignored. An unknown name
// fails with errors.ErrUnsupported.
func ParseFlags(s string) (Flags, error) {
	var out Flags
	for _, tok := range strings.Split(s, ",") {
		tok = strings.ToLower(strings.TrimSpace(tok))
		if tok == "" {
			continue
		}
		f, ok := lookupFlag(tok)
		if !ok {
			return 0, errors.WrapInvalid(fmt.Errorf("%w: flag %q", errors.ErrUnsupported, tok),
				"directory", "ParseFlags", "decode flags")
		}
		out |= f
	}
	return out, nil
}

func lookupFlag(name string) (Flags, bool) {
	for _, fn := range flagNames {
		if fn.name == name {
			return fn.flag, true
		}
	}
	return 0, false
}

// Has reports whether every bit of mask is set in f
func (f Flags) Has(mask Flags) bool {
	return f&mask == mask
}

// String renders f as a comma separated name list
func (f Flags) String() string {
	var names []string
	for _, fn := range flagNames {
		if f&fn.flag != 0 {
			names = append(names, fn.name)
		}
	}
	return strings.Join(names, ",")
}

// MarshalJSON encodes flags by name
func (f Flags) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.String())
}

// UnmarshalJSON accepts a name list string or a raw bitmask number
func (f *Flags) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, err := ParseFlags(s)
		if err != nil {
			return err
		}
		*f = parsed
		return nil
	}

	var n uint32
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("flags must be a name list or a number: %w", err)
	}
	*f = Flags(n)
	return nil
}
