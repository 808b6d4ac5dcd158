// Package fixver defines the wire protocol versions (BeginString values)
// and application message-schema versions (ApplVerID values) handled by
// the engine.
//
// FIX 4.0 through 4.4 carry both transport and application semantics in a
// single BeginString. FIXT.1.1 separates the two: BeginString identifies
// only the session-layer transport, while a per-message ApplVerID (or the
// session-wide DefaultApplVerID negotiated at Logon) identifies the
// application schema version of the payload (FIX 5.0, 5.0 SP1, 5.0 SP2).
package fixver

import "fmt"

// FIXVersion identifies the wire BeginString (tag 8).
type FIXVersion uint8

const (
	// Unknown is the zero value; never valid on the wire.
	Unknown FIXVersion = iota

	FIX40
	FIX41
	FIX42
	FIX43
	FIX44
	FIXT11
)

// beginStrings maps FIXVersion to its canonical BeginString wire value, in
// declaration order so String()/ParseBeginString() stay in sync.
var beginStrings = [...]string{
	Unknown: "",
	FIX40:   "FIX.4.0",
	FIX41:   "FIX.4.1",
	FIX42:   "FIX.4.2",
	FIX43:   "FIX.4.3",
	FIX44:   "FIX.4.4",
	FIXT11:  "FIXT.1.1",
}

// String returns the canonical wire BeginString for v, or "" for Unknown.
func (v FIXVersion) String() string {
	if int(v) < len(beginStrings) {
		return beginStrings[v]
	}
	return ""
}

// IsFIXT reports whether v is the FIXT.1.1 transport version, which
// carries a separately versioned application payload.
func (v FIXVersion) IsFIXT() bool {
	return v == FIXT11
}

// ParseBeginString maps a wire BeginString to a FIXVersion.
func ParseBeginString(s string) (FIXVersion, error) {
	for v := FIX40; v <= FIXT11; v++ {
		if beginStrings[v] == s {
			return v, nil
		}
	}
	return Unknown, fmt.Errorf("%w: %q", ErrUnsupportedBeginString, s)
}

// ErrUnsupportedBeginString is returned by ParseBeginString for any value
// outside FIX.4.0-FIX.4.4 / FIXT.1.1.
var ErrUnsupportedBeginString = fmt.Errorf("unsupported BeginString")

// MessageVersion identifies the application schema version of a message's
// payload. Under plain FIX 4.x, the message version always equals the
// transport FIXVersion. Under FIXT.1.1, it is negotiated independently via
// DefaultApplVerID / ApplVerID (tag 1128).
//
// Ordering matters: comparisons like "minimum supported message version"
// rely on MessageVersion being monotonically increasing with protocol age,
// exactly as field/message descriptors in the dictionary declare their
// introduction version.
type MessageVersion uint8

const (
	// MsgVerUnknown is the zero value; never valid once negotiated.
	MsgVerUnknown MessageVersion = iota
	MsgVer40
	MsgVer41
	MsgVer42
	MsgVer43
	MsgVer44
	MsgVer50
	MsgVer50SP1
	MsgVer50SP2
)

var msgVerNames = [...]string{
	MsgVerUnknown: "Unknown",
	MsgVer40:      "FIX.4.0",
	MsgVer41:      "FIX.4.1",
	MsgVer42:      "FIX.4.2",
	MsgVer43:      "FIX.4.3",
	MsgVer44:      "FIX.4.4",
	MsgVer50:      "FIX.5.0",
	MsgVer50SP1:   "FIX.5.0SP1",
	MsgVer50SP2:   "FIX.5.0SP2",
}

func (v MessageVersion) String() string {
	if int(v) < len(msgVerNames) {
		return msgVerNames[v]
	}
	return "Unknown"
}

// MaxMessageVersion returns the newest application schema version that can
// possibly be carried by fv: FIX 4.x versions carry only their own
// matching version, while FIXT.1.1 can carry any of the FIX 5.0 family,
// and an acceptor's Logon reply is stamped with the newest of those so it
// can legally include every field the peer might understand.
func MaxMessageVersion(fv FIXVersion) MessageVersion {
	switch fv {
	case FIX40:
		return MsgVer40
	case FIX41:
		return MsgVer41
	case FIX42:
		return MsgVer42
	case FIX43:
		return MsgVer43
	case FIX44:
		return MsgVer44
	case FIXT11:
		return MsgVer50SP2
	default:
		return MsgVerUnknown
	}
}

// DefaultMessageVersion returns the message version implied directly by a
// non-FIXT transport version (FIX 4.x only). Callers must not call this
// for FIXT11; that version's message version is always negotiated.
func DefaultMessageVersion(fv FIXVersion) MessageVersion {
	switch fv {
	case FIX40:
		return MsgVer40
	case FIX41:
		return MsgVer41
	case FIX42:
		return MsgVer42
	case FIX43:
		return MsgVer43
	case FIX44:
		return MsgVer44
	default:
		return MsgVerUnknown
	}
}

// ApplVerIDToMessageVersion maps the wire ApplVerID enum (tag 1128/1137)
// to a MessageVersion. FIX defines ApplVerID values 0-8 for FIX.2.7
// through FIX.5.0SP2; this engine only supports the subset this spec
// targets (FIX.4.0 through FIX.5.0SP2).
func ApplVerIDToMessageVersion(applVerID string) (MessageVersion, error) {
	switch applVerID {
	case "2":
		return MsgVer40, nil
	case "3":
		return MsgVer41, nil
	case "4":
		return MsgVer42, nil
	case "5":
		return MsgVer43, nil
	case "6":
		return MsgVer44, nil
	case "7":
		return MsgVer50, nil
	case "8":
		return MsgVer50SP1, nil
	case "9":
		return MsgVer50SP2, nil
	default:
		return MsgVerUnknown, fmt.Errorf("%w: %q", ErrUnsupportedApplVerID, applVerID)
	}
}

// MessageVersionToApplVerID is the inverse of ApplVerIDToMessageVersion,
// used when stamping DefaultApplVerID on an outbound Logon.
func MessageVersionToApplVerID(v MessageVersion) (string, error) {
	switch v {
	case MsgVer40:
		return "2", nil
	case MsgVer41:
		return "3", nil
	case MsgVer42:
		return "4", nil
	case MsgVer43:
		return "5", nil
	case MsgVer44:
		return "6", nil
	case MsgVer50:
		return "7", nil
	case MsgVer50SP1:
		return "8", nil
	case MsgVer50SP2:
		return "9", nil
	default:
		return "", fmt.Errorf("%w: %v", ErrUnsupportedApplVerID, v)
	}
}

// ErrUnsupportedApplVerID is returned when an ApplVerID value falls
// outside the range this engine understands.
var ErrUnsupportedApplVerID = fmt.Errorf("unsupported ApplVerID")
