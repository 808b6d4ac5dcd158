// Package message defines the in-memory representation of a parsed or
// to-be-serialized FIX message (spec §3 "Parsed message").
package message

import (
	"fmt"
	"time"

	"github.com/fixdaemon/gofix/internal/fix/dict"
	"github.com/fixdaemon/gofix/internal/fix/fixver"
)

// Group is one repeating-group instance: an ordered list of occurrences,
// each a tag->raw-value map scoped to that occurrence (spec §3
// "Repeating-group fields hold an ordered list of sub-messages.").
type Group struct {
	Occurrences []map[dict.Tag]string
}

// Metadata carries the framing information every parsed message records
// alongside its fields (spec §3 "Parsed message").
type Metadata struct {
	BeginString string
	BodyLength  int
	Checksum    string
	Version     fixver.MessageVersion
}

// Message is a mapping from tag to typed (string-encoded) value, plus
// repeating groups and framing Metadata (spec §3 "Parsed message").
//
// Scalar values are stored in their wire string form; Session and host
// code decode them on demand via the typed accessors below. This mirrors
// the teacher's packet accessor style (typed getters over a raw byte
// buffer) while staying generic across the open-ended FIX field set.
type Message struct {
	MsgType string
	Meta    Metadata

	fields map[dict.Tag]string
	groups map[dict.Tag]*Group

	// order preserves insertion order for deterministic re-serialization
	// of fields the engine doesn't otherwise reposition (e.g. custom
	// fields echoed back verbatim).
	order []dict.Tag
}

// New creates an empty Message for the given MsgType.
func New(msgType string) *Message {
	return &Message{
		MsgType: msgType,
		fields:  make(map[dict.Tag]string),
		groups:  make(map[dict.Tag]*Group),
	}
}

// Set stores tag's raw string value, recording insertion order the first
// time tag is set.
func (m *Message) Set(tag dict.Tag, value string) {
	if _, exists := m.fields[tag]; !exists {
		m.order = append(m.order, tag)
	}
	m.fields[tag] = value
}

// SetInt stores an integer-valued field.
func (m *Message) SetInt(tag dict.Tag, v int64) {
	m.Set(tag, fmt.Sprintf("%d", v))
}

// SetBool stores a Y/N-valued field.
func (m *Message) SetBool(tag dict.Tag, v bool) {
	if v {
		m.Set(tag, "Y")
	} else {
		m.Set(tag, "N")
	}
}

// SetUTCTimestamp stores t formatted per FIX's UTCTimestamp wire format
// (YYYYMMDD-HH:MM:SS.sss, always UTC).
func (m *Message) SetUTCTimestamp(tag dict.Tag, t time.Time) {
	m.Set(tag, t.UTC().Format("20060102-15:04:05.000"))
}

// Get returns tag's raw string value and whether it was present.
func (m *Message) Get(tag dict.Tag) (string, bool) {
	v, ok := m.fields[tag]
	return v, ok
}

// Has reports whether tag is present.
func (m *Message) Has(tag dict.Tag) bool {
	_, ok := m.fields[tag]
	return ok
}

// GetInt decodes tag as a signed integer.
func (m *Message) GetInt(tag dict.Tag) (int64, error) {
	v, ok := m.fields[tag]
	if !ok {
		return 0, fmt.Errorf("%w: tag %d", ErrFieldNotSet, tag)
	}
	var n int64
	if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
		return 0, fmt.Errorf("decode tag %d as int: %w", tag, err)
	}
	return n, nil
}

// GetBool decodes tag as a FIX boolean (Y/N).
func (m *Message) GetBool(tag dict.Tag) (bool, error) {
	v, ok := m.fields[tag]
	if !ok {
		return false, fmt.Errorf("%w: tag %d", ErrFieldNotSet, tag)
	}
	switch v {
	case "Y":
		return true, nil
	case "N":
		return false, nil
	default:
		return false, fmt.Errorf("%w: tag %d value %q", ErrNotBoolean, tag, v)
	}
}

// GetUTCTimestamp decodes tag as a FIX UTCTimestamp.
func (m *Message) GetUTCTimestamp(tag dict.Tag) (time.Time, error) {
	v, ok := m.fields[tag]
	if !ok {
		return time.Time{}, fmt.Errorf("%w: tag %d", ErrFieldNotSet, tag)
	}
	t, err := time.Parse("20060102-15:04:05.000", v)
	if err != nil {
		t, err = time.Parse("20060102-15:04:05", v)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("decode tag %d as UTCTimestamp: %w", tag, err)
	}
	return t.UTC(), nil
}

// SetGroup installs a fully-populated repeating group under tag.
func (m *Message) SetGroup(tag dict.Tag, g *Group) {
	if _, exists := m.fields[tag]; !exists {
		m.order = append(m.order, tag)
	}
	m.fields[tag] = fmt.Sprintf("%d", len(g.Occurrences))
	m.groups[tag] = g
}

// GetGroup returns the repeating group stored under tag, if any.
func (m *Message) GetGroup(tag dict.Tag) (*Group, bool) {
	g, ok := m.groups[tag]
	return g, ok
}

// Tags returns every top-level tag in insertion order.
func (m *Message) Tags() []dict.Tag {
	return m.order
}

// ErrFieldNotSet is returned by typed accessors when the requested tag
// is absent.
var ErrFieldNotSet = fmt.Errorf("field not set")

// ErrNotBoolean is returned by GetBool for a non Y/N value.
var ErrNotBoolean = fmt.Errorf("value is not Y/N")
