package pdf

import (
	"bytes"
	"strconv"
	"strings"
	"unicode/utf16"
)

// DecodeContent recovers readable text from a page content stream. Strings
// shown with Tj, TJ, ' and " are decoded as UTF-16BE when they carry a BOM
// and as Latin-1 otherwise; text positioning operators become spaces or
// line breaks. Fonts with custom encodings are not mapped.
func DecodeContent(stream []byte) string {
	lx := &lexer{data: stream}
	var out strings.Builder
	var operands []token
	newline := func() {
		s := out.String()
		if len(s) > 0 && !strings.HasSuffix(s, "\n") {
			out.WriteByte('\n')
		}
	}
	space := func() {
		s := out.String()
		if len(s) > 0 && !strings.HasSuffix(s, " ") && !strings.HasSuffix(s, "\n") {
			out.WriteByte(' ')
		}
	}
	for {
		tok, ok := lx.next()
		if !ok {
			break
		}
		if tok.kind != tokOperator {
			operands = append(operands, tok)
			continue
		}
		switch tok.text {
		case "BI":
			lx.skipInlineImage()
		case "ET":
			newline()
		case "T*":
			newline()
		case "Td", "TD":
			if len(operands) >= 2 && operands[len(operands)-1].num != 0 {
				newline()
			} else {
				space()
			}
		case "Tm":
			space()
		case "Tj":
			if len(operands) > 0 {
				out.WriteString(operands[len(operands)-1].text)
			}
		case "'", "\"":
			newline()
			if len(operands) > 0 {
				out.WriteString(operands[len(operands)-1].text)
			}
		case "TJ":
			if len(operands) > 0 {
				for _, el := range operands[len(operands)-1].array {
					if el.kind == tokNumber {
						// Large negative kerning is an inter-word gap.
						if el.num < -200 {
							space()
						}
						continue
					}
					out.WriteString(el.text)
				}
			}
		}
		operands = operands[:0]
	}
	return tidy(out.String())
}

func tidy(s string) string {
	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, l := range lines {
		l = strings.Join(strings.Fields(l), " ")
		if l != "" {
			kept = append(kept, l)
		}
	}
	return strings.Join(kept, "\n")
}

type tokenKind int

const (
	tokOperator tokenKind = iota
	tokNumber
	tokString
	tokName
	tokArray
	tokOther
)

type token struct {
	kind  tokenKind
	text  string
	num   float64
	array []token
}

type lexer struct {
	data []byte
	pos  int
}

func isWhite(c byte) bool {
	return c == ' ' || c == '\n' || c == '\r' || c == '\t' || c == '\f' || c == 0
}

func isDelim(c byte) bool {
	return strings.IndexByte("()<>[]{}/%", c) >= 0
}

func (l *lexer) skipSpace() {
	for l.pos < len(l.data) {
		c := l.data[l.pos]
		if isWhite(c) {
			l.pos++
			continue
		}
		if c == '%' {
			for l.pos < len(l.data) && l.data[l.pos] != '\n' && l.data[l.pos] != '\r' {
				l.pos++
			}
			continue
		}
		return
	}
}

func (l *lexer) next() (token, bool) {
	l.skipSpace()
	if l.pos >= len(l.data) {
		return token{}, false
	}
	c := l.data[l.pos]
	switch {
	case c == '(':
		l.pos++
		return token{kind: tokString, text: decodeText(l.literal())}, true
	case c == '<' && l.pos+1 < len(l.data) && l.data[l.pos+1] == '<':
		l.skipDict()
		return token{kind: tokOther}, true
	case c == '<':
		l.pos++
		return token{kind: tokString, text: decodeText(l.hex())}, true
	case c == '[':
		l.pos++
		var arr []token
		for {
			l.skipSpace()
			if l.pos >= len(l.data) {
				break
			}
			if l.data[l.pos] == ']' {
				l.pos++
				break
			}
			t, ok := l.next()
			if !ok {
				break
			}
			arr = append(arr, t)
		}
		return token{kind: tokArray, array: arr}, true
	case c == ']' || c == '>' || c == ')' || c == '{' || c == '}':
		l.pos++
		return token{kind: tokOther}, true
	case c == '/':
		l.pos++
		return token{kind: tokName, text: l.word()}, true
	}
	w := l.word()
	if w == "" {
		l.pos++
		return token{kind: tokOther}, true
	}
	if n, err := strconv.ParseFloat(w, 64); err == nil {
		return token{kind: tokNumber, num: n, text: w}, true
	}
	return token{kind: tokOperator, text: w}, true
}

func (l *lexer) word() string {
	start := l.pos
	for l.pos < len(l.data) && !isWhite(l.data[l.pos]) && !isDelim(l.data[l.pos]) {
		l.pos++
	}
	return string(l.data[start:l.pos])
}

// literal reads a (string) body after the opening paren.
func (l *lexer) literal() []byte {
	var buf []byte
	depth := 1
	for l.pos < len(l.data) {
		c := l.data[l.pos]
		l.pos++
		switch c {
		case '\\':
			if l.pos >= len(l.data) {
				return buf
			}
			e := l.data[l.pos]
			l.pos++
			switch e {
			case 'n':
				buf = append(buf, '\n')
			case 'r':
				buf = append(buf, '\r')
			case 't':
				buf = append(buf, '\t')
			case 'b':
				buf = append(buf, '\b')
			case 'f':
				buf = append(buf, '\f')
			case '\r':
				if l.pos < len(l.data) && l.data[l.pos] == '\n' {
					l.pos++
				}
			case '\n':
			default:
				if e >= '0' && e <= '7' {
					v := int(e - '0')
					for i := 0; i < 2 && l.pos < len(l.data) && l.data[l.pos] >= '0' && l.data[l.pos] <= '7'; i++ {
						v = v*8 + int(l.data[l.pos]-'0')
						l.pos++
					}
					buf = append(buf, byte(v))
				} else {
					buf = append(buf, e)
				}
			}
		case '(':
			depth++
			buf = append(buf, c)
		case ')':
			depth--
			if depth == 0 {
				return buf
			}
			buf = append(buf, c)
		default:
			buf = append(buf, c)
		}
	}
	return buf
}

func (l *lexer) hex() []byte {
	var digits []byte
	for l.pos < len(l.data) && l.data[l.pos] != '>' {
		c := l.data[l.pos]
		if !isWhite(c) {
			digits = append(digits, c)
		}
		l.pos++
	}
	l.pos++
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	out := make([]byte, 0, len(digits)/2)
	for i := 0; i+1 < len(digits); i += 2 {
		v, err := strconv.ParseUint(string(digits[i:i+2]), 16, 8)
		if err != nil {
			continue
		}
		out = append(out, byte(v))
	}
	return out
}

func (l *lexer) skipDict() {
	depth := 0
	for l.pos+1 < len(l.data) {
		switch {
		case l.data[l.pos] == '<' && l.data[l.pos+1] == '<':
			depth++
			l.pos += 2
		case l.data[l.pos] == '>' && l.data[l.pos+1] == '>':
			depth--
			l.pos += 2
			if depth == 0 {
				return
			}
		default:
			l.pos++
		}
	}
	l.pos = len(l.data)
}

// skipInlineImage jumps past the binary data of a BI ... ID ... EI block.
func (l *lexer) skipInlineImage() {
	if i := bytes.Index(l.data[l.pos:], []byte("ID")); i >= 0 {
		l.pos += i + 2
	}
	for l.pos < len(l.data) {
		i := bytes.Index(l.data[l.pos:], []byte("EI"))
		if i < 0 {
			l.pos = len(l.data)
			return
		}
		end := l.pos + i
		before := end == 0 || isWhite(l.data[end-1])
		after := end+2 >= len(l.data) || isWhite(l.data[end+2])
		l.pos = end + 2
		if before && after {
			return
		}
	}
}

func decodeText(b []byte) string {
	if len(b) >= 2 && b[0] == 0xFE && b[1] == 0xFF {
		b = b[2:]
		u := make([]uint16, 0, len(b)/2)
		for i := 0; i+1 < len(b); i += 2 {
			u = append(u, uint16(b[i])<<8|uint16(b[i+1]))
		}
		return string(utf16.Decode(u))
	}
	r := make([]rune, len(b))
	for i, c := range b {
		r[i] = rune(c)
	}
	return string(r)
}
