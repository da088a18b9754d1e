package fix

import (
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

// Invisible code points that Marp's layout engine chokes on: zero-width
// spaces and joiners, directional marks and the BOM.
var invisibleRunes = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x200b, Hi: 0x200f, Stride: 1},
		{Lo: 0xfeff, Hi: 0xfeff, Stride: 1},
	},
}

// CleanMarkdown removes invisible characters from markdown source before it
// is handed to marp. Everything else passes through untouched.
func CleanMarkdown(data []byte) []byte {
	out, _, err := transform.Bytes(runes.Remove(runes.In(invisibleRunes)), data)
	if err != nil {
		// Remove cannot fail on valid UTF-8; on broken input keep the
		// original bytes and let marp deal with it.
		return data
	}
	return out
}
