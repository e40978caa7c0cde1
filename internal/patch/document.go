package patch

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/roblox-funapp/internal/domain"
)

// Slot names an addressable region of the game document
type Slot int

const (
	SlotConfig Slot = iota
	SlotObstacles
	SlotPowerUps
	SlotCustomCode
	slotCount
)

func (s Slot) String() string {
	switch s {
	case SlotConfig:
		return "CONFIG"
	case SlotObstacles:
		return "obstacleTypes"
	case SlotPowerUps:
		return "powerUps"
	case SlotCustomCode:
		return "CUSTOM_CODE"
	default:
		return fmt.Sprintf("slot(%d)", int(s))
	}
}

const (
	customCodeStart = "// CUSTOM_CODE_START"
	customCodeEnd   = "// CUSTOM_CODE_END"

	elementIndent = "\n        "
	closeIndent   = "\n      "
	codeIndent    = "\n    "
)

// anchors match the text that opens each slot; slot content starts right after the match.
var anchors = [slotCount]*regexp.Regexp{
	SlotConfig:     regexp.MustCompile(`\bCONFIG\s*=\s*\{`),
	SlotObstacles:  regexp.MustCompile(`\bobstacleTypes\s*:\s*\[`),
	SlotPowerUps:   regexp.MustCompile(`\bpowerUps\s*:\s*\[`),
	SlotCustomCode: regexp.MustCompile(regexp.QuoteMeta(customCodeStart)),
}

const noSlot Slot = -1

type segment struct {
	slot Slot
	text string
}

// Document is a game file split once into literal text and slot contents.
// Edits return a new Document; literal segments are never rewritten by slot edits.
//
// A slot whose anchor occurs zero times is missing; more than once is ambiguous.
// Anchors that fall inside another slot's content are not addressable either.
type Document struct {
	segments []segment
	status   [slotCount]error
}

// Parse splits text into segments
func Parse(text string) *Document {
	d := &Document{}

	for s := Slot(0); s < slotCount; s++ {
		switch n := len(anchors[s].FindAllStringIndex(text, -1)); {
		case n == 0:
			d.status[s] = domain.ErrMissingSlot
		case n > 1:
			d.status[s] = fmt.Errorf("%w: %d anchors", domain.ErrAmbiguousSlot, n)
		}
	}

	var done [slotCount]bool
	pos, literalStart := 0, 0
	for {
		next, loc := noSlot, []int(nil)
		for s := Slot(0); s < slotCount; s++ {
			if done[s] || d.status[s] != nil {
				continue
			}
			l := anchors[s].FindStringIndex(text[pos:])
			if l != nil && (loc == nil || l[0] < loc[0]) {
				next, loc = s, l
			}
		}
		if next == noSlot {
			break
		}
		done[next] = true

		contentStart := pos + loc[1]
		contentEnd, ok := slotEnd(next, text, contentStart)
		if !ok {
			d.status[next] = fmt.Errorf("%w: unterminated", domain.ErrMissingSlot)
			continue
		}

		d.segments = append(d.segments,
			segment{slot: noSlot, text: text[literalStart:contentStart]},
			segment{slot: next, text: text[contentStart:contentEnd]},
		)
		pos, literalStart = contentEnd, contentEnd
	}
	d.segments = append(d.segments, segment{slot: noSlot, text: text[literalStart:]})

	for s := Slot(0); s < slotCount; s++ {
		if d.status[s] == nil && !done[s] {
			d.status[s] = fmt.Errorf("%w: nested in another slot", domain.ErrMissingSlot)
		}
	}

	return d
}

// slotEnd returns the index where the slot content ends (exclusive)
func slotEnd(s Slot, text string, start int) (int, bool) {
	switch s {
	case SlotCustomCode:
		i := strings.Index(text[start:], customCodeEnd)
		if i < 0 {
			return 0, false
		}
		return start + i, true
	case SlotConfig:
		return matchingClose(text, start, '{', '}')
	default:
		return matchingClose(text, start, '[', ']')
	}
}

// matchingClose scans from start (just after an opener) to the matching closer,
// skipping quoted strings and line or block comments.
func matchingClose(text string, start int, open, close byte) (int, bool) {
	depth := 1
	var quote byte
	for i := start; i < len(text); i++ {
		c := text[i]
		if quote != 0 {
			switch c {
			case '\\':
				i++
			case quote:
				quote = 0
			}
			continue
		}
		switch {
		case strings.HasPrefix(text[i:], "//"):
			nl := strings.IndexByte(text[i:], '\n')
			if nl < 0 {
				return 0, false
			}
			i += nl
		case strings.HasPrefix(text[i:], "/*"):
			end := strings.Index(text[i+2:], "*/")
			if end < 0 {
				return 0, false
			}
			i += 2 + end + 1
		case c == '\'' || c == '"' || c == '`':
			quote = c
		case c == open:
			depth++
		case c == close:
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

// String renders the document back to text
func (d *Document) String() string {
	var b strings.Builder
	for _, seg := range d.segments {
		b.WriteString(seg.text)
	}
	return b.String()
}

// Err reports why a slot is not addressable, or nil
func (d *Document) Err(s Slot) error {
	if err := d.status[s]; err != nil {
		return fmt.Errorf("%s: %w", s, err)
	}
	return nil
}

// Content returns the raw text inside a slot
func (d *Document) Content(s Slot) (string, error) {
	i, err := d.index(s)
	if err != nil {
		return "", err
	}
	return d.segments[i].text, nil
}

func (d *Document) index(s Slot) (int, error) {
	if err := d.Err(s); err != nil {
		return -1, err
	}
	for i, seg := range d.segments {
		if seg.slot == s {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%s: %w", s, domain.ErrMissingSlot)
}

func (d *Document) with(i int, text string) *Document {
	out := &Document{status: d.status}
	out.segments = append([]segment(nil), d.segments...)
	out.segments[i].text = text
	return out
}

// SetConfigValue replaces the value of the first `key: value` pair in CONFIG,
// keeping surrounding formatting. literal is written as-is.
func (d *Document) SetConfigValue(key, literal string) (*Document, error) {
	i, err := d.index(SlotConfig)
	if err != nil {
		return nil, err
	}
	content := d.segments[i].text

	start, end, ok := findConfigValue(content, key)
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, domain.ErrKeyNotFound)
	}

	return d.with(i, content[:start]+literal+content[end:]), nil
}

// ConfigValue returns the literal currently assigned to key in CONFIG
func (d *Document) ConfigValue(key string) (string, error) {
	content, err := d.Content(SlotConfig)
	if err != nil {
		return "", err
	}
	start, end, ok := findConfigValue(content, key)
	if !ok {
		return "", fmt.Errorf("%s: %w", key, domain.ErrKeyNotFound)
	}
	return content[start:end], nil
}

func findConfigValue(content, key string) (int, int, bool) {
	re, err := regexp.Compile(`(?:^|[^\w$])['"]?` + regexp.QuoteMeta(key) + `['"]?\s*:\s*`)
	if err != nil {
		return 0, 0, false
	}
	loc := re.FindStringIndex(content)
	if loc == nil {
		return 0, 0, false
	}

	start := loc[1]
	end := start
	var quote byte
	for ; end < len(content); end++ {
		c := content[end]
		if quote != 0 {
			switch c {
			case '\\':
				end++
			case quote:
				quote = 0
			}
			continue
		}
		if c == '\'' || c == '"' {
			quote = c
			continue
		}
		if c == ',' || c == '}' || c == '\n' || strings.HasPrefix(content[end:], "//") {
			break
		}
	}
	if end > len(content) {
		end = len(content)
	}

	// trailing whitespace stays outside the value token
	value := strings.TrimRight(content[start:end], " \t\r")
	return start, start + len(value), true
}

// Elements decodes an array slot whose elements are JSON objects
func (d *Document) Elements(s Slot) ([]json.RawMessage, error) {
	content, err := d.Content(s)
	if err != nil {
		return nil, err
	}
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return nil, nil
	}

	var out []json.RawMessage
	if err := json.Unmarshal([]byte("["+trimmed+"]"), &out); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", s, domain.ErrSlotNotJSON, err)
	}
	return out, nil
}

// AppendElement adds one element after the existing ones in an array slot
func (d *Document) AppendElement(s Slot, element string) (*Document, error) {
	i, err := d.index(s)
	if err != nil {
		return nil, err
	}

	existing := strings.TrimSpace(d.segments[i].text)
	if existing == "" {
		return d.with(i, elementIndent+element+closeIndent), nil
	}
	return d.with(i, elementIndent+existing+","+elementIndent+element+closeIndent), nil
}

// ReplaceElements overwrites an array slot with elements, in order
func (d *Document) ReplaceElements(s Slot, elements []string) (*Document, error) {
	i, err := d.index(s)
	if err != nil {
		return nil, err
	}
	return d.with(i, elementIndent+strings.Join(elements, ","+elementIndent)+closeIndent), nil
}

// ReplaceCustomCode overwrites everything between the custom code markers.
// The markers themselves stay in place.
func (d *Document) ReplaceCustomCode(code string) (*Document, error) {
	i, err := d.index(SlotCustomCode)
	if err != nil {
		return nil, err
	}
	return d.with(i, codeIndent+code+codeIndent), nil
}

// replaceLiteral applies re to the first literal segment that matches it.
// With all set every match in every literal segment is replaced.
func (d *Document) replaceLiteral(re *regexp.Regexp, repl string, all bool) (*Document, bool) {
	out, replaced := d, false
	for i, seg := range d.segments {
		if seg.slot != noSlot {
			continue
		}
		if all {
			if re.MatchString(seg.text) {
				out = out.with(i, re.ReplaceAllLiteralString(seg.text, repl))
				replaced = true
			}
			continue
		}
		loc := re.FindStringIndex(seg.text)
		if loc == nil {
			continue
		}
		return d.with(i, seg.text[:loc[0]]+repl+seg.text[loc[1]:]), true
	}
	return out, replaced
}
