package dict

import "github.com/fixdaemon/gofix/internal/fix/fixver"

// EnumSpec describes the legal values of an enumerated field.
//
// Open enumerations (spec §3: "enumerated (open or closed)") accept any
// value on the wire -- they exist to document known values, not to
// reject unknown ones. Closed enumerations reject anything outside
// Values with ParseError.OutOfRangeTag.
type EnumSpec struct {
	Open   bool
	Values map[string]struct{}
}

// NewClosedEnum builds a closed EnumSpec from the given legal values.
func NewClosedEnum(values ...string) *EnumSpec {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return &EnumSpec{Open: false, Values: set}
}

// NewOpenEnum builds an open EnumSpec: documented values, but anything
// else is still accepted.
func NewOpenEnum(values ...string) *EnumSpec {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return &EnumSpec{Open: true, Values: set}
}

// Allows reports whether v is a legal value for this enum.
func (e *EnumSpec) Allows(v string) bool {
	if e == nil || e.Open {
		return true
	}
	_, ok := e.Values[v]
	return ok
}

// FieldDescriptor is the process-wide definition of one field tag (spec
// §3: "Field descriptor: (tag, value-kind, parsing-rule, version-range)").
type FieldDescriptor struct {
	Tag  Tag
	Name string
	Kind Kind

	// MinVersion is the oldest MessageVersion in which this field is
	// defined. The codec does not check it: a known field is accepted
	// under any message version.
	MinVersion fixver.MessageVersion

	// LengthTag is set only for KindData fields: the tag of the
	// companion length-prefix field that must immediately precede this
	// one (spec §4.1 "Length-prefixed opaque fields").
	LengthTag Tag

	// Enum is set only for fields with an enumerated value set (the
	// KindEnum fields, and the KindChar MsgDirection).
	Enum *EnumSpec

	// Group is set only for KindNumGroup fields: the descriptor of the
	// repeating group this count field introduces.
	Group *GroupDescriptor
}

// GroupDescriptor describes a repeating group's structure (spec §3
// "Message descriptor" / §4.1 "Repeating groups").
type GroupDescriptor struct {
	// Delimiter is the tag that must be the first field of every
	// occurrence; its reappearance starts a new occurrence.
	Delimiter Tag

	// Fields lists every tag legal inside one occurrence, keyed by tag.
	// A tag not present here terminates the group and resumes the
	// enclosing scope.
	Fields map[Tag]*MessageField
}
