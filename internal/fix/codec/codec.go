// Package codec implements the wire-level FIX parser and serializer (spec
// §4.1 "Codec"). It knows nothing about session state; Session drives it
// by feeding inbound bytes through Parse and draining completed messages,
// and by calling Serialize to produce outbound bytes.
//
// The parser is a single hand-written scanner rather than a
// grammar-generated one (spec §9 Design Note (a)): FIX's tag=value
// framing with occasional length-prefixed exceptions does not benefit
// much from a parser generator, and the teacher's own wire codec
// (internal/bfd/packet.go) is likewise a plain hand-rolled reader over a
// byte slice.
package codec

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"

	"github.com/fixdaemon/gofix/internal/fix/dict"
	"github.com/fixdaemon/gofix/internal/fix/fixver"
	"github.com/fixdaemon/gofix/internal/fix/message"
)

const soh = 0x01

// checksumFieldLen is the fixed wire width of the trailing "10=XXX\x01"
// field: checksum is always rendered as exactly three decimal digits.
const checksumFieldLen = 7

// Codec parses and serializes FIX messages against a Dictionary. One
// Codec is owned by exactly one Session (spec §5 "Shared-resource
// policy": the Dictionary itself is shared and read-only, but a Codec's
// per-message-type version overrides and partial-read outbox are
// session-private).
type Codec struct {
	dict           *dict.Dictionary
	maxMessageSize int

	defaultVersion    fixver.MessageVersion
	perMsgTypeVersion map[string]fixver.MessageVersion

	// lengthTagToData reverse-indexes a length tag to the data field it
	// introduces, so the parser knows to switch a single following field
	// read from SOH-delimited to raw-byte-counted.
	lengthTagToData map[dict.Tag]*dict.FieldDescriptor

	// groupMemberTags is the set of every tag that belongs to some
	// repeating group's field set anywhere in the dictionary, used to
	// tell "this tag needs a NumInGroup that was never sent"
	// (RepeatingGroupTagWithNoRepeatingGroup) apart from a plain unknown
	// tag.
	groupMemberTags map[dict.Tag]struct{}

	outbox []*message.Message
}

// New builds a Codec bound to d. maxMessageSize bounds total wire length
// (spec §4.1 "MessageSizeTooBig").
func New(d *dict.Dictionary, maxMessageSize int) *Codec {
	c := &Codec{
		dict:              d,
		maxMessageSize:    maxMessageSize,
		defaultVersion:    fixver.MaxMessageVersion(fixver.FIXT11),
		perMsgTypeVersion: make(map[string]fixver.MessageVersion),
		lengthTagToData:   make(map[dict.Tag]*dict.FieldDescriptor),
		groupMemberTags:   make(map[dict.Tag]struct{}),
	}
	for _, fd := range d.Fields {
		if fd.Kind == dict.KindData && fd.LengthTag != 0 {
			c.lengthTagToData[fd.LengthTag] = fd
		}
		if fd.Kind == dict.KindNumGroup && fd.Group != nil {
			for memberTag := range fd.Group.Fields {
				c.groupMemberTags[memberTag] = struct{}{}
			}
		}
	}
	return c
}

// SetDefaultMessageVersion sets the application schema version assumed
// for FIXT.1.1 messages that carry no explicit ApplVerID, overriding the
// built-in newest-supported default. Session calls this once a Logon
// negotiates DefaultApplVerID (spec §4.2).
func (c *Codec) SetDefaultMessageVersion(v fixver.MessageVersion) {
	c.defaultVersion = v
}

// SetDefaultMessageTypeVersion overrides the assumed version for one
// specific MsgType, per the FIXT.1.1 DefaultCstmApplVerID-per-message
// exception (spec §4.2 ApplVerID negotiation).
func (c *Codec) SetDefaultMessageTypeVersion(msgType string, v fixver.MessageVersion) {
	c.perMsgTypeVersion[msgType] = v
}

// ClearDefaultMessageTypeVersions removes every per-MsgType override.
func (c *Codec) ClearDefaultMessageTypeVersions() {
	c.perMsgTypeVersion = make(map[string]fixver.MessageVersion)
}

// MaxMessageSize returns the configured size ceiling.
func (c *Codec) MaxMessageSize() int { return c.maxMessageSize }

// Drain returns and clears every message successfully parsed so far.
func (c *Codec) Drain() []*message.Message {
	out := c.outbox
	c.outbox = nil
	return out
}

// Parse feeds data (the unconsumed remainder of the inbound stream) to
// the scanner. It returns the number of leading bytes consumed -- the
// caller advances its read buffer by exactly that much -- and a
// ParseError if the consumed span was malformed. Leading garbage bytes
// before a recognizable "8=" boundary are silently skipped (consumed > 0,
// err == nil); a message that is present but not yet fully buffered
// yields (0, nil) so the caller waits for more bytes before calling
// again. Successfully parsed messages accumulate for retrieval via
// Drain.
func (c *Codec) Parse(data []byte) (consumed int, err *ParseError) {
	if skip := skipGarbage(data); skip > 0 {
		return skip, nil
	}
	if len(data) == 0 {
		return 0, nil
	}

	n, msg, perr, needMore := c.parseOne(data)
	if needMore {
		return 0, nil
	}
	if perr != nil {
		return n, perr
	}
	c.outbox = append(c.outbox, msg)
	return n, nil
}

// skipGarbage returns the number of leading bytes that cannot possibly
// be the start of a valid message, i.e. bytes before the next "8=" that
// begins at the start of the buffer or immediately follows a SOH.
func skipGarbage(data []byte) int {
	if isBeginStringPrefix(data) {
		return 0
	}
	for i := 1; i < len(data); i++ {
		if data[i-1] != soh {
			continue
		}
		if isBeginStringPrefix(data[i:]) {
			return i
		}
	}
	return len(data)
}

// isBeginStringPrefix reports whether rem is, or might become with more
// data, a literal "8=" prefix.
func isBeginStringPrefix(rem []byte) bool {
	if len(rem) == 0 {
		return false
	}
	if rem[0] != '8' {
		return false
	}
	if len(rem) == 1 {
		return true
	}
	return rem[1] == '='
}

// scopeFrame is one level of the parse-time field-set stack: either the
// top-level message scope, or one active repeating-group occurrence
// scope (spec §4.1 "Repeating groups").
type scopeFrame struct {
	fields map[dict.Tag]*dict.MessageField
	seen   map[dict.Tag]struct{}

	isGroup       bool
	groupDesc     *dict.GroupDescriptor
	groupTag      dict.Tag
	awaitingFirst bool
	occurrences   []map[dict.Tag]string
	current       map[dict.Tag]string

	pendingDataTag dict.Tag
	pendingDataLen int
}

// parseOne parses exactly one message starting at data[0], which must
// already begin with a literal "8=" (skipGarbage guarantees this).
func (c *Codec) parseOne(data []byte) (consumed int, msg *message.Message, perr *ParseError, needMore bool) {
	pos := 0

	tag, val, n, ferr, nm := readField(data, pos)
	if nm {
		return 0, nil, nil, true
	}
	if ferr != nil {
		return pos + n, nil, ferr, false
	}
	if tag != dict.TagBeginString {
		return pos + n, nil, newErr(BeginStrNotFirstTag, true), false
	}
	beginStr := val
	pos += n

	tag, val, n, ferr, nm = readField(data, pos)
	if nm {
		return 0, nil, nil, true
	}
	if ferr != nil {
		return pos + n, nil, ferr, false
	}
	if tag != dict.TagBodyLength {
		return pos + n, nil, newErr(BodyLengthNotSecondTag, true), false
	}
	bodyLen, convErr := strconv.Atoi(val)
	if convErr != nil || bodyLen < 0 {
		return pos + n, nil, newErr(BodyLengthNotNumber, true), false
	}
	pos += n
	bodyStart := pos

	msgEnd := bodyStart + bodyLen + checksumFieldLen
	if msgEnd > c.maxMessageSize {
		return pos, nil, newErr(MessageSizeTooBig, true), false
	}
	if msgEnd > len(data) {
		return 0, nil, nil, true
	}
	bodyEnd := msgEnd - checksumFieldLen

	// Checksum is validated before any body field is interpreted: framing
	// failures take priority over body-content failures (spec §7).
	csField := data[bodyEnd:msgEnd]
	if csField[0] != '1' || csField[1] != '0' || csField[2] != '=' {
		return msgEnd, nil, newErr(ChecksumNotLastTag, true), false
	}
	for _, b := range csField[3:6] {
		if b < '0' || b > '9' {
			return msgEnd, nil, newErr(ChecksumWrongFormat, true), false
		}
	}
	if csField[6] != soh {
		return msgEnd, nil, newErr(ChecksumWrongFormat, true), false
	}
	received, _ := strconv.Atoi(string(csField[3:6]))
	sum := 0
	for _, b := range data[:bodyEnd] {
		sum += int(b)
	}
	calculated := sum % 256
	if calculated != received {
		return msgEnd, nil, &ParseError{Kind: ChecksumDoesNotMatch, Calculated: calculated, Received: received, Garbled: true}, false
	}

	fv, verr := fixver.ParseBeginString(beginStr)
	if verr != nil {
		return msgEnd, nil, newErr(WrongFormatTag, true), false
	}
	isFIXT := fv.IsFIXT()

	pos = bodyStart
	tag, val, n, ferr, nm = readField(data, pos)
	if nm {
		return 0, nil, nil, true
	}
	if ferr != nil {
		return msgEnd, nil, ferr, false
	}
	if tag != dict.TagMsgType {
		return msgEnd, nil, newErr(MsgTypeNotThirdTag, true), false
	}
	msgType := val
	pos += n

	msg = message.New(msgType)
	msg.Meta = message.Metadata{BeginString: beginStr, BodyLength: bodyLen, Checksum: string(csField[3:6])}

	md := c.dict.MessageByType(msgType)
	if md == nil {
		return msgEnd, msg, &ParseError{Kind: MsgTypeUnknown, MsgType: msgType}, false
	}

	msgVersion := c.defaultVersion
	if !isFIXT {
		msgVersion = fixver.DefaultMessageVersion(fv)
	} else if v, ok := c.perMsgTypeVersion[msgType]; ok {
		msgVersion = v
	}

	if isFIXT {
		tag, val, n, ferr, nm = readField(data, pos)
		if nm {
			return 0, nil, nil, true
		}
		if ferr != nil {
			return msgEnd, msg, ferr, false
		}
		if tag != dict.TagSenderCompID {
			return msgEnd, msg, newErr(SenderCompIDNotFourthTag, true), false
		}
		msg.Set(dict.TagSenderCompID, val)
		pos += n

		tag, val, n, ferr, nm = readField(data, pos)
		if nm {
			return 0, nil, nil, true
		}
		if ferr != nil {
			return msgEnd, msg, ferr, false
		}
		if tag != dict.TagTargetCompID {
			return msgEnd, msg, newErr(TargetCompIDNotFifthTag, true), false
		}
		msg.Set(dict.TagTargetCompID, val)
		pos += n

		if pos < bodyEnd {
			peekTag, peekVal, peekN, peekErr, peekNM := readField(data, pos)
			if peekNM {
				return 0, nil, nil, true
			}
			if peekErr != nil {
				return msgEnd, msg, peekErr, false
			}
			if peekTag == dict.TagApplVerID {
				ov, averr := fixver.ApplVerIDToMessageVersion(peekVal)
				if averr != nil {
					return msgEnd, msg, newTagErr(OutOfRangeTag, dict.TagApplVerID, false), false
				}
				msgVersion = ov
				msg.Set(dict.TagApplVerID, peekVal)
				pos += peekN
			}
		}
	}
	msg.Meta.Version = msgVersion

	fieldSet := make(map[dict.Tag]*dict.MessageField, len(md.Fields)+len(c.dict.StandardHeader)+len(c.dict.StandardTrailer))
	for _, f := range md.Fields {
		fieldSet[f.Field.Tag] = f
	}
	for _, f := range c.dict.StandardHeader {
		fieldSet[f.Field.Tag] = f
	}
	for _, f := range c.dict.StandardTrailer {
		fieldSet[f.Field.Tag] = f
	}
	if !isFIXT {
		// Plain FIX 4.x carries SenderCompID/TargetCompID as ordinary
		// header fields rather than at fixed positions 4 and 5.
		for _, t := range []dict.Tag{dict.TagSenderCompID, dict.TagTargetCompID} {
			fieldSet[t] = &dict.MessageField{Field: c.dict.Fields[t]}
		}
	}

	top :=&scopeFrame{fields: fieldSet, seen: make(map[dict.Tag]struct{})}
	top.seen[dict.TagBeginString] = struct{}{}
	top.seen[dict.TagBodyLength] = struct{}{}
	top.seen[dict.TagMsgType] = struct{}{}
	if isFIXT {
		top.seen[dict.TagSenderCompID] = struct{}{}
		top.seen[dict.TagTargetCompID] = struct{}{}
		top.seen[dict.TagApplVerID] = struct{}{}
	}
	stack := []*scopeFrame{top}

	finalizeGroup := func(f *scopeFrame) {
		if f.current != nil {
			f.occurrences = append(f.occurrences, f.current)
			f.current = nil
		}
		msg.SetGroup(f.groupTag, &message.Group{Occurrences: f.occurrences})
	}

	for pos < bodyEnd {
		cur := stack[len(stack)-1]

		var ftag dict.Tag
		var fval string
		var fn int
		var ferr2 *ParseError
		var nm2 bool
		hadPending := cur.pendingDataTag != 0
		if hadPending {
			ftag, fval, fn, ferr2, nm2 = readDataField(data, pos, cur.pendingDataTag, cur.pendingDataLen)
		} else {
			ftag, fval, fn, ferr2, nm2 = readField(data, pos)
		}
		if nm2 {
			return 0, nil, nil, true
		}
		if ferr2 != nil {
			return msgEnd, msg, ferr2, false
		}
		if hadPending {
			if ftag != cur.pendingDataTag {
				return msgEnd, msg, newTagErr(MissingFollowingLengthTag, cur.pendingDataTag, false), false
			}
			cur.pendingDataTag = 0
		}
		pos += fn

		startedInGroup := stack[len(stack)-1].isGroup

		var desc *dict.MessageField
		var target *scopeFrame
		for {
			f := stack[len(stack)-1]
			if d, ok := f.fields[ftag]; ok {
				desc, target = d, f
				break
			}
			if len(stack) == 1 {
				break
			}
			finalizeGroup(f)
			stack = stack[:len(stack)-1]
		}

		if desc == nil {
			if _, ok := c.groupMemberTags[ftag]; ok {
				return msgEnd, msg, newTagErr(RepeatingGroupTagWithNoRepeatingGroup, ftag, false), false
			}
			if startedInGroup {
				return msgEnd, msg, newTagErr(NonRepeatingGroupTagInRepeatingGroup, ftag, false), false
			}
			if _, ok := c.dict.Fields[ftag]; ok {
				return msgEnd, msg, newTagErr(UnexpectedTag, ftag, false), false
			}
			return msgEnd, msg, newTagErr(UnknownTag, ftag, false), false
		}
		if !desc.Field.Enum.Allows(fval) {
			return msgEnd, msg, newTagErr(OutOfRangeTag, ftag, false), false
		}

		if target.isGroup {
			switch {
			case ftag == target.groupDesc.Delimiter:
				if target.current != nil {
					target.occurrences = append(target.occurrences, target.current)
				}
				target.current = make(map[dict.Tag]string)
				target.awaitingFirst = false
			case target.awaitingFirst:
				return msgEnd, msg, newTagErr(MissingFirstRepeatingGroupTagAfterNumberOfRepeatingGroupTag, ftag, false), false
			default:
				if _, dup := target.current[ftag]; dup {
					return msgEnd, msg, newTagErr(DuplicateTag, ftag, false), false
				}
			}
			target.current[ftag] = fval
		} else {
			if _, dup := target.seen[ftag]; dup {
				return msgEnd, msg, newTagErr(DuplicateTag, ftag, false), false
			}
			target.seen[ftag] = struct{}{}
			msg.Set(ftag, fval)
		}

		switch {
		case desc.Field.Kind == dict.KindNumGroup:
			count, cerr := strconv.Atoi(fval)
			if cerr != nil || count < 0 {
				return msgEnd, msg, newTagErr(WrongFormatTag, ftag, false), false
			}
			stack = append(stack, &scopeFrame{
				fields:        desc.Field.Group.Fields,
				seen:          make(map[dict.Tag]struct{}),
				isGroup:       true,
				groupDesc:     desc.Field.Group,
				groupTag:      ftag,
				awaitingFirst: count > 0,
			})
		case desc.Field.Kind == dict.KindLength:
			if dataDesc, ok := c.lengthTagToData[ftag]; ok {
				length, lerr := strconv.Atoi(fval)
				if lerr != nil || length < 0 {
					return msgEnd, msg, newTagErr(WrongFormatTag, ftag, false), false
				}
				target.pendingDataTag = dataDesc.Tag
				target.pendingDataLen = length
			}
		case desc.Field.Kind == dict.KindData:
			if !hadPending {
				return msgEnd, msg, newTagErr(MissingPrecedingLengthTag, ftag, false), false
			}
		}
	}

	for len(stack) > 1 {
		f := stack[len(stack)-1]
		finalizeGroup(f)
		stack = stack[:len(stack)-1]
	}

	lookup := func(t dict.Tag) (string, bool) { return msg.Get(t) }
	for tag, f := range fieldSet {
		if msg.Has(tag) {
			continue
		}
		if f.Required {
			return msgEnd, msg, newTagErr(MissingRequiredTag, tag, false), false
		}
		if f.CondRequired != nil && f.CondRequired(lookup) {
			return msgEnd, msg, newTagErr(MissingConditionallyRequiredTag, tag, false), false
		}
	}

	return msgEnd, msg, nil, false
}

// readField reads one SOH-delimited tag=value field starting at pos.
func readField(data []byte, pos int) (tag dict.Tag, val string, consumed int, perr *ParseError, needMore bool) {
	eq := -1
	for i := pos; i < len(data); i++ {
		if data[i] == '=' {
			eq = i
			break
		}
		if data[i] < '0' || data[i] > '9' {
			return 0, "", 0, newErr(WrongFormatTag, true), false
		}
	}
	if eq == -1 {
		return 0, "", 0, nil, true
	}
	if eq == pos {
		return 0, "", 0, newErr(WrongFormatTag, true), false
	}
	tagNum, convErr := strconv.ParseUint(string(data[pos:eq]), 10, 32)
	if convErr != nil {
		return 0, "", 0, newErr(WrongFormatTag, true), false
	}

	sohIdx := -1
	for i := eq + 1; i < len(data); i++ {
		if data[i] == soh {
			sohIdx = i
			break
		}
	}
	if sohIdx == -1 {
		return 0, "", 0, nil, true
	}

	return dict.Tag(tagNum), string(data[eq+1 : sohIdx]), sohIdx + 1 - pos, nil, false
}

// readDataField reads a length-prefixed opaque field: "<expectedTag>="
// followed by exactly length raw bytes and a trailing SOH, bypassing the
// normal SOH-delimited scan since the raw bytes may themselves contain
// SOH (spec §4.1 "Length-prefixed opaque fields").
func readDataField(data []byte, pos int, expectedTag dict.Tag, length int) (tag dict.Tag, val string, consumed int, perr *ParseError, needMore bool) {
	eq := -1
	for i := pos; i < len(data); i++ {
		if data[i] == '=' {
			eq = i
			break
		}
		if data[i] < '0' || data[i] > '9' {
			return 0, "", 0, newErr(WrongFormatTag, true), false
		}
	}
	if eq == -1 {
		return 0, "", 0, nil, true
	}
	tagNum, convErr := strconv.ParseUint(string(data[pos:eq]), 10, 32)
	if convErr != nil {
		return 0, "", 0, newErr(WrongFormatTag, true), false
	}

	valueStart := eq + 1
	valueEnd := valueStart + length
	if valueEnd >= len(data) {
		return 0, "", 0, nil, true
	}
	if data[valueEnd] != soh {
		return 0, "", 0, newTagErr(WrongFormatTag, dict.Tag(tagNum), true), false
	}
	_ = expectedTag

	return dict.Tag(tagNum), string(data[valueStart:valueEnd]), valueEnd + 1 - pos, nil, false
}

// Serialize renders msg to its wire form and writes it to out. The
// caller (Session) is responsible for having already set every
// fixed-position and header field it wants sent -- MsgSeqNum,
// SendingTime, and so on -- via msg.Set/SetInt/SetUTCTimestamp before
// calling Serialize; this mirrors the teacher's packet builder, which
// likewise only encodes whatever the caller already populated in a
// struct (internal/bfd/packet.go).
func (c *Codec) Serialize(msg *message.Message, fv fixver.FIXVersion, senderCompID, targetCompID string, msgVersion fixver.MessageVersion, out *bytes.Buffer) error {
	isFIXT := fv.IsFIXT()

	var body bytes.Buffer
	writeField(&body, dict.TagMsgType, msg.MsgType)
	writeField(&body, dict.TagSenderCompID, senderCompID)
	writeField(&body, dict.TagTargetCompID, targetCompID)

	if isFIXT {
		applVerID, err := fixver.MessageVersionToApplVerID(msgVersion)
		if err != nil {
			return err
		}
		writeField(&body, dict.TagApplVerID, applVerID)
	}

	written := map[dict.Tag]struct{}{
		dict.TagBeginString: {}, dict.TagBodyLength: {}, dict.TagMsgType: {},
		dict.TagSenderCompID: {}, dict.TagTargetCompID: {}, dict.TagApplVerID: {},
		dict.TagChecksum: {},
	}

	for _, t := range msg.Tags() {
		if _, done := written[t]; done {
			continue
		}
		written[t] = struct{}{}
		c.writeMessageField(&body, msg, t)
	}

	bodyLen := body.Len()
	start := out.Len()
	out.WriteString(fmt.Sprintf("8=%s\x01", fv.String()))
	out.WriteString(fmt.Sprintf("9=%d\x01", bodyLen))
	out.Write(body.Bytes())

	sum := 0
	for _, b := range out.Bytes()[start:] {
		sum += int(b)
	}
	out.WriteString(fmt.Sprintf("10=%03d\x01", sum%256))
	return nil
}

// writeMessageField writes tag's value, expanding a repeating group if
// tag is one, and emitting the paired length tag first if tag is a
// length-prefixed data field. The length is always derived from the
// value's actual byte length rather than any separately stored length
// field, so the two can never desynchronize.
func (c *Codec) writeMessageField(buf *bytes.Buffer, msg *message.Message, tag dict.Tag) {
	if fd, ok := c.lengthTagToData[tag]; ok {
		if v, ok := msg.Get(fd.Tag); ok {
			writeField(buf, tag, strconv.Itoa(len(v)))
			writeField(buf, fd.Tag, v)
		}
		return
	}
	if fd := c.dict.FieldDesc(tag); fd != nil && fd.Kind == dict.KindData {
		return // written alongside its length tag above
	}
	if fd := c.dict.FieldDesc(tag); fd != nil && fd.Kind == dict.KindNumGroup {
		grp, ok := msg.GetGroup(tag)
		if !ok {
			return
		}
		writeField(buf, tag, strconv.Itoa(len(grp.Occurrences)))
		for _, occ := range grp.Occurrences {
			writeGroupOccurrence(buf, fd.Group, occ)
		}
		return
	}
	v, ok := msg.Get(tag)
	if !ok {
		return
	}
	writeField(buf, tag, v)
}

// writeGroupOccurrence writes one occurrence's fields, delimiter tag
// first and the remainder in ascending tag order. Ascending order is a
// simplification over the original wire order (which this engine does
// not retain field-by-field within a group occurrence); it is still
// deterministic and round-trips correctly.
func writeGroupOccurrence(buf *bytes.Buffer, grp *dict.GroupDescriptor, occ map[dict.Tag]string) {
	if v, ok := occ[grp.Delimiter]; ok {
		writeField(buf, grp.Delimiter, v)
	}
	tags := make([]dict.Tag, 0, len(occ))
	for t := range occ {
		if t == grp.Delimiter {
			continue
		}
		tags = append(tags, t)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	for _, t := range tags {
		writeField(buf, t, occ[t])
	}
}

func writeField(buf *bytes.Buffer, tag dict.Tag, val string) {
	buf.WriteString(strconv.FormatUint(uint64(tag), 10))
	buf.WriteByte('=')
	buf.WriteString(val)
	buf.WriteByte(soh)
}
