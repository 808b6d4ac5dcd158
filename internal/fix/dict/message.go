package dict

import "github.com/fixdaemon/gofix/internal/fix/fixver"

// CondRequiredFunc evaluates a conditional-required predicate against the
// fields already parsed for the enclosing message (spec §3 "conditional-
// required predicates", e.g. "OrigSendingTime is required iff
// PossDupFlag=Y"). The lookup function returns (stringValue, present).
type CondRequiredFunc func(lookup func(Tag) (string, bool)) bool

// MessageField is one entry in a MessageDescriptor's or GroupDescriptor's
// field list: a field plus its required-flag, minimum version, and an
// optional conditional-required predicate (spec §3).
type MessageField struct {
	Field *FieldDescriptor

	// Required is unconditional requiredness. Mutually exclusive in
	// practice with CondRequired, but both may be left at their zero
	// values for a plain optional field.
	Required bool

	// MinVersion is the minimum MessageVersion at which this field is
	// legal *for this message type*; it may be newer than
	// Field.MinVersion when a field is reused by an older message only
	// starting at some later revision.
	MinVersion fixver.MessageVersion

	// CondRequired, if set, is evaluated once all fields in scope have
	// been parsed; returning true without the field present yields
	// MissingConditionallyRequiredTag.
	CondRequired CondRequiredFunc
}

// MessageDescriptor is the process-wide definition of one message type
// (spec §3 "Message descriptor").
type MessageDescriptor struct {
	MsgTypeStr string
	Name       string

	// Fields is the ordered list of body fields (excluding the
	// fixed-position header fields BeginString/BodyLength/MsgType/
	// SenderCompID/TargetCompID/ApplVerID and the standard header/
	// trailer fields common to every message, which the Dictionary
	// tracks separately).
	Fields []*MessageField

	// byTag indexes Fields for O(1) lookup during parsing.
	byTag map[Tag]*MessageField
}

// FieldByTag returns the MessageField for tag within this message's body
// field set, or nil if tag does not belong to this message type.
func (m *MessageDescriptor) FieldByTag(t Tag) *MessageField {
	return m.byTag[t]
}

// finalize builds the byTag index. Called once by the Dictionary builder.
func (m *MessageDescriptor) finalize() {
	m.byTag = make(map[Tag]*MessageField, len(m.Fields))
	for _, mf := range m.Fields {
		m.byTag[mf.Field.Tag] = mf
	}
}
