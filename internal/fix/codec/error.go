package codec

import (
	"fmt"

	"github.com/fixdaemon/gofix/internal/fix/dict"
)

// ErrorKind enumerates every ParseError variant named in spec §4.1.
type ErrorKind uint8

const (
	MissingRequiredTag ErrorKind = iota
	UnexpectedTag
	UnknownTag
	NoValueAfterTag
	OutOfRangeTag
	WrongFormatTag
	BeginStrNotFirstTag
	BodyLengthNotSecondTag
	BodyLengthNotNumber
	MsgTypeNotThirdTag
	SenderCompIDNotFourthTag
	TargetCompIDNotFifthTag
	ApplVerIDNotSixthTag
	ChecksumNotLastTag
	ChecksumDoesNotMatch
	ChecksumWrongFormat
	DuplicateTag
	MissingPrecedingLengthTag
	MissingFollowingLengthTag
	NonRepeatingGroupTagInRepeatingGroup
	RepeatingGroupTagWithNoRepeatingGroup
	MissingFirstRepeatingGroupTagAfterNumberOfRepeatingGroupTag
	MessageSizeTooBig
	MsgTypeUnknown
	MissingConditionallyRequiredTag
)

var errorKindNames = [...]string{
	MissingRequiredTag:                    "MissingRequiredTag",
	UnexpectedTag:                         "UnexpectedTag",
	UnknownTag:                            "UnknownTag",
	NoValueAfterTag:                       "NoValueAfterTag",
	OutOfRangeTag:                         "OutOfRangeTag",
	WrongFormatTag:                        "WrongFormatTag",
	BeginStrNotFirstTag:                   "BeginStrNotFirstTag",
	BodyLengthNotSecondTag:                "BodyLengthNotSecondTag",
	BodyLengthNotNumber:                   "BodyLengthNotNumber",
	MsgTypeNotThirdTag:                    "MsgTypeNotThirdTag",
	SenderCompIDNotFourthTag:              "SenderCompIDNotFourthTag",
	TargetCompIDNotFifthTag:               "TargetCompIDNotFifthTag",
	ApplVerIDNotSixthTag:                  "ApplVerIDNotSixthTag",
	ChecksumNotLastTag:                    "ChecksumNotLastTag",
	ChecksumDoesNotMatch:                  "ChecksumDoesNotMatch",
	ChecksumWrongFormat:                   "ChecksumWrongFormat",
	DuplicateTag:                          "DuplicateTag",
	MissingPrecedingLengthTag:             "MissingPrecedingLengthTag",
	MissingFollowingLengthTag:             "MissingFollowingLengthTag",
	NonRepeatingGroupTagInRepeatingGroup:  "NonRepeatingGroupTagInRepeatingGroup",
	RepeatingGroupTagWithNoRepeatingGroup: "RepeatingGroupTagWithNoRepeatingGroup",
	MissingFirstRepeatingGroupTagAfterNumberOfRepeatingGroupTag: "MissingFirstRepeatingGroupTagAfterNumberOfRepeatingGroupTag",
	MessageSizeTooBig:               "MessageSizeTooBig",
	MsgTypeUnknown:                  "MsgTypeUnknown",
	MissingConditionallyRequiredTag: "MissingConditionallyRequiredTag",
}

func (k ErrorKind) String() string {
	if int(k) < len(errorKindNames) {
		return errorKindNames[k]
	}
	return "Unknown"
}

// ParseError is the structured error type returned by Codec.Parse (spec
// §4.1 "Error taxonomy").
//
// Garbled indicates the failure happened at the framing layer (wrong
// BeginString position, bad checksum, malformed length) rather than
// within an otherwise well-framed body; Session uses this to choose
// between MessageReceivedGarbled (no sequence increment) and a Reject /
// BusinessMessageReject (sequence increment), per spec §7.
type ParseError struct {
	Kind ErrorKind

	// Tag is the offending field tag, where applicable.
	Tag dict.Tag

	// MsgType is set for MsgTypeUnknown.
	MsgType string

	// Calculated/Received are set for ChecksumDoesNotMatch.
	Calculated int
	Received   int

	// Garbled distinguishes framing-layer failures (spec §7 item 1) from
	// body-layer failures (spec §7 item 2).
	Garbled bool

	// HasMsgSeqNum/MsgSeqNum record whether the garbled message parsed
	// far enough to recover a MsgSeqNum, per the rule that a garbled
	// message which did yield a MsgSeqNum still advances the inbound
	// sequence number (spec §7 item 1).
	HasMsgSeqNum bool
	MsgSeqNum    uint64
}

func newErr(kind ErrorKind, garbled bool) *ParseError {
	return &ParseError{Kind: kind, Garbled: garbled}
}

func newTagErr(kind ErrorKind, tag dict.Tag, garbled bool) *ParseError {
	return &ParseError{Kind: kind, Tag: tag, Garbled: garbled}
}

func (e *ParseError) Error() string {
	switch e.Kind {
	case ChecksumDoesNotMatch:
		return fmt.Sprintf("%s: calculated=%d received=%d", e.Kind, e.Calculated, e.Received)
	case MsgTypeUnknown:
		return fmt.Sprintf("%s: %q", e.Kind, e.MsgType)
	default:
		if e.Tag != 0 {
			return fmt.Sprintf("%s: tag %d", e.Kind, e.Tag)
		}
		return e.Kind.String()
	}
}
