// Package wire turns upstream byte streams of unknown framing into opaque
// payload strings, one per event, and re-encodes events per destination
// protocol.
package wire

import (
	"strings"
)

// Framing is the detected stream format.
type Framing int

const (
	FramingUnknown Framing = iota
	FramingSSE
	FramingJSONArray
	FramingNDJSON
)

// Decoder incrementally splits a byte stream into payload strings. The
// framing is sniffed from the first non-whitespace byte:
//
//	'e', 'd', ':'  -> SSE (named events or data-only)
//	'['            -> JSON array of objects
//	'{'            -> newline-delimited JSON
//
// Until the framing is determinable, input is buffered.
type Decoder struct {
	framing Framing
	buf     strings.Builder

	sse   sseParser
	array arrayScanner
}

// Push consumes a chunk and returns the payloads completed by it. Callers
// filter [DONE] sentinels and empty events themselves.
func (d *Decoder) Push(chunk []byte) []string {
	if len(chunk) == 0 {
		return nil
	}
	if d.framing == FramingUnknown {
		d.buf.Write(chunk)
		data := d.buf.String()
		trimmed := strings.TrimLeft(data, " \t\r\n")
		if trimmed == "" {
			return nil
		}
		switch {
		case strings.HasPrefix(trimmed, "event:"), strings.HasPrefix(trimmed, "data:"), trimmed[0] == ':':
			d.framing = FramingSSE
		case trimmed[0] == '[':
			d.framing = FramingJSONArray
		case trimmed[0] == '{':
			d.framing = FramingNDJSON
		default:
			// Could still become "event:" once more bytes arrive.
			if len(trimmed) >= 6 {
				d.framing = FramingNDJSON
			} else {
				return nil
			}
		}
		d.buf.Reset()
		return d.feed(data)
	}
	return d.feed(string(chunk))
}

func (d *Decoder) feed(data string) []string {
	switch d.framing {
	case FramingSSE:
		return d.sse.push(data)
	case FramingJSONArray:
		return d.array.push(data)
	case FramingNDJSON:
		return d.pushLines(data)
	}
	return nil
}

func (d *Decoder) pushLines(data string) []string {
	d.buf.WriteString(data)
	text := d.buf.String()
	var out []string
	for {
		idx := strings.IndexByte(text, '\n')
		if idx < 0 {
			break
		}
		line := strings.TrimSuffix(text[:idx], "\r")
		text = text[idx+1:]
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	d.buf.Reset()
	d.buf.WriteString(text)
	return out
}

// Finish drains pending buffers and returns any trailing payload.
func (d *Decoder) Finish() []string {
	switch d.framing {
	case FramingSSE:
		return d.sse.finish()
	case FramingJSONArray:
		return d.array.finish()
	default:
		rest := strings.TrimSpace(d.buf.String())
		d.buf.Reset()
		if rest == "" {
			return nil
		}
		return []string{rest}
	}
}

// Framing reports the detected framing, FramingUnknown before detection.
func (d *Decoder) Framing() Framing { return d.framing }

// sseParser accumulates SSE fields until a blank line completes an event.
// Multi-line data is joined with '\n'; the event name is dropped since the
// payload JSON carries its own discriminator.
type sseParser struct {
	buf  strings.Builder
	data []string
}

func (p *sseParser) push(chunk string) []string {
	p.buf.WriteString(chunk)
	text := p.buf.String()
	var out []string
	for {
		idx := strings.IndexByte(text, '\n')
		if idx < 0 {
			break
		}
		line := strings.TrimSuffix(text[:idx], "\r")
		text = text[idx+1:]
		if payload, done := p.line(line); done {
			out = append(out, payload)
		}
	}
	p.buf.Reset()
	p.buf.WriteString(text)
	return out
}

// line consumes one SSE line; on a blank line it returns the completed
// event's data.
func (p *sseParser) line(line string) (string, bool) {
	if line == "" {
		if len(p.data) == 0 {
			return "", false
		}
		payload := strings.Join(p.data, "\n")
		p.data = nil
		return payload, true
	}
	if strings.HasPrefix(line, ":") {
		return "", false
	}
	field, value, _ := strings.Cut(line, ":")
	value = strings.TrimPrefix(value, " ")
	switch field {
	case "data":
		p.data = append(p.data, value)
	case "event", "id", "retry":
		// The payload's own type field is authoritative.
	}
	return "", false
}

func (p *sseParser) finish() []string {
	var out []string
	if rest := p.buf.String(); rest != "" {
		p.buf.Reset()
		if payload, done := p.line(strings.TrimSuffix(rest, "\r")); done {
			out = append(out, payload)
		}
	}
	if len(p.data) > 0 {
		out = append(out, strings.Join(p.data, "\n"))
		p.data = nil
	}
	return out
}

// arrayScanner yields one object string per top-level {...} element of a
// JSON array, respecting nesting and quoted strings with backslash escapes.
type arrayScanner struct {
	buf      strings.Builder
	depth    int
	inString bool
	escaped  bool
	started  bool
	element  strings.Builder
}

func (s *arrayScanner) push(chunk string) []string {
	var out []string
	for _, r := range chunk {
		if s.inString {
			s.element.WriteRune(r)
			switch {
			case s.escaped:
				s.escaped = false
			case r == '\\':
				s.escaped = true
			case r == '"':
				s.inString = false
			}
			continue
		}
		switch r {
		case '{':
			s.depth++
			s.started = true
			s.element.WriteRune(r)
		case '}':
			s.element.WriteRune(r)
			s.depth--
			if s.started && s.depth == 0 {
				out = append(out, s.element.String())
				s.element.Reset()
				s.started = false
			}
		case '"':
			if s.started {
				s.inString = true
				s.element.WriteRune(r)
			}
		default:
			if s.started {
				s.element.WriteRune(r)
			}
			// Outside elements: array punctuation and whitespace.
		}
	}
	return out
}

func (s *arrayScanner) finish() []string {
	if s.started && s.element.Len() > 0 {
		// Truncated trailing element; surface what we have.
		payload := s.element.String()
		s.element.Reset()
		s.started = false
		return []string{payload}
	}
	return nil
}
