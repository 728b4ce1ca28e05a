package codec

import (
	"strings"
	"unicode/utf8"

	"cipherpaste/pkg/domain"
)

const hexDigits = "0123456789abcdef"

// canonical renders p the way ECMAScript JSON.stringify does:
// fixed key order, no whitespace, minimal escaping. The signature member is
// only written when withSignature is set.
func canonical(p *domain.Paste, withSignature bool) string {
	var b strings.Builder
	b.Grow(len(p.Content) + len(p.CreatedAt) + len(p.ExpiresAt) + len(p.Syntax) + len(p.Signature) + 96)
	b.WriteString(`{"content":`)
	quote(&b, p.Content)
	b.WriteString(`,"createdAt":`)
	quote(&b, p.CreatedAt)
	b.WriteString(`,"expiresAt":`)
	quote(&b, p.ExpiresAt)
	b.WriteString(`,"isPublic":`)
	if p.IsPublic {
		b.WriteString("true")
	} else {
		b.WriteString("false")
	}
	b.WriteString(`,"syntax":`)
	quote(&b, p.Syntax)
	if withSignature {
		b.WriteString(`,"signature":`)
		quote(&b, p.Signature)
	}
	b.WriteByte('}')
	return b.String()
}

// quote escapes only what ECMAScript requires. Unlike encoding/json it leaves
// <, >, & and U+2028/U+2029 alone, which the signature depends on.
func quote(b *strings.Builder, s string) {
	b.WriteByte('"')
	for i := 0; i < len(s); {
		c := s[i]
		if c < utf8.RuneSelf {
			switch c {
			case '"':
				b.WriteString(`\"`)
			case '\\':
				b.WriteString(`\\`)
			case '\b':
				b.WriteString(`\b`)
			case '\f':
				b.WriteString(`\f`)
			case '\n':
				b.WriteString(`\n`)
			case '\r':
				b.WriteString(`\r`)
			case '\t':
				b.WriteString(`\t`)
			default:
				if c < 0x20 {
					b.WriteString(`\u00`)
					b.WriteByte(hexDigits[c>>4])
					b.WriteByte(hexDigits[c&0xf])
				} else {
					b.WriteByte(c)
				}
			}
			i++
			continue
		}
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			b.WriteRune(utf8.RuneError)
		} else {
			b.WriteString(s[i : i+size])
		}
		i += size
	}
	b.WriteByte('"')
}
