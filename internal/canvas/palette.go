package canvas

import (
	"fmt"
	"strings"
)

var DefaultPalette = []string{
	"#ffffff",
	"#9ca3af",
	"#111827",
	"#ef4444",
	"#f97316",
	"#eab308",
	"#22c55e",
	"#14b8a6",
	"#06b6d4",
	"#3b82f6",
	"#6366f1",
	"#8b5cf6",
	"#a855f7",
	"#d946ef",
	"#ec4899",
	"#84cc16",
}

// Palette is the finite set of color tokens actors may place. Tokens are matched
// case-insensitively and stored lower-case.
type Palette struct {
	colors []string
	index  map[string]struct{}
}

func NewPalette(colors []string) (Palette, error) {
	p := Palette{index: make(map[string]struct{}, len(colors))}
	for _, c := range colors {
		token := strings.ToLower(strings.TrimSpace(c))
		if !isHexColor(token) {
			return Palette{}, fmt.Errorf("palette: invalid color token %q", c)
		}
		if _, dup := p.index[token]; dup {
			continue
		}
		p.index[token] = struct{}{}
		p.colors = append(p.colors, token)
	}
	if len(p.colors) == 0 {
		return Palette{}, fmt.Errorf("palette: no colors")
	}
	return p, nil
}

func MustPalette(colors []string) Palette {
	p, err := NewPalette(colors)
	if err != nil {
		panic(err)
	}
	return p
}

func (p Palette) Normalize(token string) (string, bool) {
	t := strings.ToLower(strings.TrimSpace(token))
	_, ok := p.index[t]
	return t, ok
}

func (p Palette) Contains(token string) bool {
	_, ok := p.Normalize(token)
	return ok
}

func (p Palette) Colors() []string {
	return append([]string(nil), p.colors...)
}

func (p Palette) Len() int { return len(p.colors) }

func isHexColor(s string) bool {
	if len(s) != 7 || s[0] != '#' {
		return false
	}
	for _, c := range s[1:] {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f':
		default:
			return false
		}
	}
	return true
}
