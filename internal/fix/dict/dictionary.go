// Package dict holds the compile-time-derived (here: init-time-derived)
// message and field descriptors consumed by the Codec and Session (spec
// §4.4). Descriptors are plain Go data built from literals in
// fields_gen.go / messages_gen.go -- the run-time-table indirection
// standing in for the source implementation's derive-macro code
// generation (spec §9 Design Note (a)).
package dict

import "github.com/fixdaemon/gofix/internal/fix/fixver"

// Dictionary is the complete set of field and message descriptors the
// engine understands, plus the standard header/trailer field lists
// shared by every message.
type Dictionary struct {
	// Fields is the process-wide field tag table.
	Fields map[Tag]*FieldDescriptor

	// Messages indexes message descriptors by their MsgType wire string
	// (e.g. "0" for Heartbeat, "A" for Logon).
	Messages map[string]*MessageDescriptor

	// StandardHeader lists the header fields common to every message
	// beyond the fixed-position BeginString/BodyLength/MsgType/
	// SenderCompID/TargetCompID/ApplVerID (spec §3 invariants).
	StandardHeader []*MessageField

	// StandardTrailer lists trailer fields other than Checksum (which is
	// always fixed-position and handled directly by the codec).
	StandardTrailer []*MessageField

	// StandardMsgTypes records every MsgType value defined anywhere in
	// the FIX standard, including ones this Dictionary has no
	// MessageDescriptor for. This backs the Reject-vs-
	// BusinessMessageReject distinction for unknown message types (spec
	// §7 item 3): a MsgType present here but absent from Messages is
	// "standard but unimplemented"; a MsgType absent from both is
	// genuinely unknown.
	StandardMsgTypes map[string]string

	headerByTag  map[Tag]*MessageField
	trailerByTag map[Tag]*MessageField
}

// New builds a Dictionary from the given message descriptors, field
// table, and standard header/trailer lists, finalizing every message's
// tag index.
func New(
	fields map[Tag]*FieldDescriptor,
	messages []*MessageDescriptor,
	stdHeader, stdTrailer []*MessageField,
	standardMsgTypes map[string]string,
) *Dictionary {
	d := &Dictionary{
		Fields:           fields,
		Messages:         make(map[string]*MessageDescriptor, len(messages)),
		StandardHeader:   stdHeader,
		StandardTrailer:  stdTrailer,
		StandardMsgTypes: standardMsgTypes,
	}

	for _, md := range messages {
		md.finalize()
		d.Messages[md.MsgTypeStr] = md
	}

	d.headerByTag = make(map[Tag]*MessageField, len(stdHeader))
	for _, mf := range stdHeader {
		d.headerByTag[mf.Field.Tag] = mf
	}

	d.trailerByTag = make(map[Tag]*MessageField, len(stdTrailer))
	for _, mf := range stdTrailer {
		d.trailerByTag[mf.Field.Tag] = mf
	}

	return d
}

// MessageByType returns the descriptor for msgType, or nil if this
// Dictionary has no descriptor for it (it may still be a known-standard,
// unimplemented type -- see IsStandardMsgType).
func (d *Dictionary) MessageByType(msgType string) *MessageDescriptor {
	return d.Messages[msgType]
}

// IsStandardMsgType reports whether msgType is defined anywhere in the
// FIX standard, regardless of whether this Dictionary implements it.
func (d *Dictionary) IsStandardMsgType(msgType string) bool {
	_, ok := d.StandardMsgTypes[msgType]
	return ok
}

// HeaderField returns the standard-header MessageField for tag, if any.
func (d *Dictionary) HeaderField(t Tag) *MessageField {
	return d.headerByTag[t]
}

// TrailerField returns the standard-trailer MessageField for tag, if any.
func (d *Dictionary) TrailerField(t Tag) *MessageField {
	return d.trailerByTag[t]
}

// FieldDesc returns the global field descriptor for tag, if known.
func (d *Dictionary) FieldDesc(t Tag) *FieldDescriptor {
	return d.Fields[t]
}

// MinSupportedVersion returns the oldest MessageVersion for which md is
// legal at all, derived from its own fields' minimum versions. Messages
// with no version-gated fields default to fixver.MsgVer40.
func MinSupportedVersion(md *MessageDescriptor) fixver.MessageVersion {
	min := fixver.MsgVer40
	for _, mf := range md.Fields {
		if mf.MinVersion > min {
			min = mf.MinVersion
		}
	}
	return min
}
