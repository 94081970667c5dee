// ABOUTME: Tokenizer for SmartREST response bodies and encoder for request lines.
// ABOUTME: Records are newline separated, fields comma separated, with CSV-style quoting.

package smartrest

import (
	"strings"
)

// Field is one token of a record. Raw is the text as received, Value the
// unquoted and trimmed content.
type Field struct {
	Raw   string
	Value string
}

// Record is one parsed line.
type Record []Field

// Len returns the number of fields.
func (r Record) Len() int {
	return len(r)
}

// Value returns the value of field i, or "" when out of range.
func (r Record) Value(i int) string {
	if i < 0 || i >= len(r) {
		return ""
	}
	return r[i].Value
}

// Code returns the leading message id.
func (r Record) Code() string {
	return r.Value(0)
}

// Values returns all field values in order.
func (r Record) Values() []string {
	out := make([]string, len(r))
	for i, f := range r {
		out[i] = f.Value
	}
	return out
}

// Parser is a restartable cursor over a response body.
type Parser struct {
	body string
	pos  int
}

// NewParser creates a parser positioned at the start of body.
func NewParser(body string) *Parser {
	return &Parser{body: body}
}

// Reset restarts the cursor over a new body.
func (p *Parser) Reset(body string) {
	p.body = body
	p.pos = 0
}

// Next returns the next non-blank record, or an empty record at end of input.
func (p *Parser) Next() Record {
	for p.pos < len(p.body) {
		if rec := p.readRecord(); rec != nil {
			return rec
		}
	}
	return nil
}

func (p *Parser) readRecord() Record {
	var rec Record
	for {
		f, last := p.readField()
		rec = append(rec, f)
		if last {
			break
		}
	}
	if len(rec) == 1 && strings.TrimSpace(rec[0].Raw) == "" {
		return nil
	}
	return rec
}

// readField consumes one field and reports whether it ended the record.
func (p *Parser) readField() (Field, bool) {
	start := p.pos
	var val strings.Builder
	quoted, inQuotes := false, false

	for p.pos < len(p.body) {
		c := p.body[p.pos]
		switch {
		case inQuotes:
			if c == '"' {
				if p.pos+1 < len(p.body) && p.body[p.pos+1] == '"' {
					val.WriteByte('"')
					p.pos += 2
					continue
				}
				inQuotes = false
			} else {
				val.WriteByte(c)
			}
		case c == '"':
			quoted, inQuotes = true, true
		case c == ',':
			f := newField(p.body[start:p.pos], val.String(), quoted)
			p.pos++
			return f, false
		case c == '\n':
			f := newField(p.body[start:p.pos], val.String(), quoted)
			p.pos++
			return f, true
		default:
			// Whitespace around a quoted value is not part of it.
			if !quoted || !isSpace(c) {
				val.WriteByte(c)
			}
		}
		p.pos++
	}
	return newField(p.body[start:], val.String(), quoted), true
}

func newField(raw, value string, quoted bool) Field {
	raw = strings.TrimRight(raw, "\r")
	if !quoted {
		value = strings.TrimSpace(value)
	}
	return Field{Raw: raw, Value: value}
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r'
}

// Line encodes fields into one request line, quoting where needed.
func Line(fields ...string) string {
	var b strings.Builder
	for i, f := range fields {
		if i > 0 {
			b.WriteByte(',')
		}
		if strings.ContainsAny(f, ",\"\r\n") {
			b.WriteByte('"')
			b.WriteString(strings.ReplaceAll(f, `"`, `""`))
			b.WriteByte('"')
			continue
		}
		b.WriteString(f)
	}
	return b.String()
}
