package codec_test

import (
	"bytes"
	"fmt"
	"testing"
	"time"

	"github.com/fixdaemon/gofix/internal/fix/codec"
	"github.com/fixdaemon/gofix/internal/fix/dict"
	"github.com/fixdaemon/gofix/internal/fix/fixver"
	"github.com/fixdaemon/gofix/internal/fix/message"
)

const maxMessageSize = 4 << 20

var parsedTestTime = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

func newHeartbeatMsg(seqNum int64) *message.Message {
	m := message.New("0")
	m.SetInt(dict.TagMsgSeqNum, seqNum)
	m.SetUTCTimestamp(dict.TagSendingTime, parsedTestTime)
	return m
}

// -------------------------------------------------------------------------
// TestRoundTrip — Serialize then Parse must reproduce every field, across
// every (fix_version, message_version) pair the engine supports (spec
// §8 "round-trip laws").
// -------------------------------------------------------------------------

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		fv     fixver.FIXVersion
		msgVer fixver.MessageVersion
		build  func() *message.Message
	}{
		{
			name:   "FIX.4.2 Heartbeat",
			fv:     fixver.FIX42,
			msgVer: fixver.MsgVer42,
			build: func() *message.Message {
				m := message.New("0")
				m.SetInt(dict.TagMsgSeqNum, 7)
				m.SetUTCTimestamp(dict.TagSendingTime, parsedTestTime)
				return m
			},
		},
		{
			name:   "FIX.4.4 TestRequest",
			fv:     fixver.FIX44,
			msgVer: fixver.MsgVer44,
			build: func() *message.Message {
				m := message.New("1")
				m.SetInt(dict.TagMsgSeqNum, 1)
				m.SetUTCTimestamp(dict.TagSendingTime, parsedTestTime)
				m.Set(dict.TagTestReqID, "ping-1")
				return m
			},
		},
		{
			name:   "FIXT.1.1 Logon at FIX.5.0",
			fv:     fixver.FIXT11,
			msgVer: fixver.MsgVer50,
			build: func() *message.Message {
				m := message.New("A")
				m.SetInt(dict.TagMsgSeqNum, 1)
				m.SetUTCTimestamp(dict.TagSendingTime, parsedTestTime)
				m.Set(dict.TagEncryptMethod, "0")
				m.SetInt(dict.TagHeartBtInt, 30)
				return m
			},
		},
		{
			name:   "FIXT.1.1 Logon at FIX.5.0SP2",
			fv:     fixver.FIXT11,
			msgVer: fixver.MsgVer50SP2,
			build: func() *message.Message {
				m := message.New("A")
				m.SetInt(dict.TagMsgSeqNum, 1)
				m.SetUTCTimestamp(dict.TagSendingTime, parsedTestTime)
				m.Set(dict.TagEncryptMethod, "0")
				m.SetInt(dict.TagHeartBtInt, 30)
				return m
			},
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			d := dict.Default()
			c := codec.New(d, maxMessageSize)
			msg := tc.build()

			var buf bytes.Buffer
			if err := c.Serialize(msg, tc.fv, "US", "THEM", tc.msgVer, &buf); err != nil {
				t.Fatalf("Serialize: %v", err)
			}

			consumed, perr := c.Parse(buf.Bytes())
			if perr != nil {
				t.Fatalf("Parse: %v", perr)
			}
			if consumed != buf.Len() {
				t.Fatalf("consumed %d, want %d", consumed, buf.Len())
			}

			got := c.Drain()
			if len(got) != 1 {
				t.Fatalf("got %d messages, want 1", len(got))
			}
			if got[0].MsgType != msg.MsgType {
				t.Errorf("MsgType = %q, want %q", got[0].MsgType, msg.MsgType)
			}
			if got[0].Meta.BeginString != tc.fv.String() {
				t.Errorf("BeginString = %q, want %q", got[0].Meta.BeginString, tc.fv.String())
			}
			for _, tag := range msg.Tags() {
				want, _ := msg.Get(tag)
				gotVal, ok := got[0].Get(tag)
				if !ok {
					t.Errorf("tag %d missing after round-trip", tag)
					continue
				}
				if gotVal != want {
					t.Errorf("tag %d = %q, want %q", tag, gotVal, want)
				}
			}
		})
	}
}

// -------------------------------------------------------------------------
// TestParseProgressGuarantee — every error return advances the stream by
// at least one byte so a malformed peer can never wedge the reader in an
// infinite re-parse loop (spec §8 "parser progress guarantee").
// -------------------------------------------------------------------------

func TestParseProgressGuarantee(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data []byte
	}{
		{"not first tag", []byte("9=12\x018=FIX.4.4\x0110=000\x01")},
		{"bad body length", []byte("8=FIX.4.4\x019=abc\x0110=000\x01")},
		{"wrong checksum", frame(t, "FIX.4.4", "35=0\x0134=1\x0152=20240102-03:04:05.000\x01", true)},
		{"unsupported begin string", frameRaw(t, "FIX.9.9", "35=0\x0134=1\x0152=20240102-03:04:05.000\x01")},
		{"unknown msg type", frameRaw(t, "FIX.4.4", "35=Z\x0134=1\x0152=20240102-03:04:05.000\x01")},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			d := dict.Default()
			c := codec.New(d, maxMessageSize)
			consumed, perr := c.Parse(tc.data)
			if perr == nil {
				t.Fatalf("expected a ParseError")
			}
			if consumed <= 0 {
				t.Fatalf("consumed = %d, want > 0 on parse error", consumed)
			}
		})
	}
}

// -------------------------------------------------------------------------
// TestParseConcatenatedMessages — N concatenated well-formed messages in
// one buffer yield exactly N messages, in order (spec §8).
// -------------------------------------------------------------------------

func TestParseConcatenatedMessages(t *testing.T) {
	t.Parallel()

	d := dict.Default()
	c := codec.New(d, maxMessageSize)

	var buf bytes.Buffer
	const n = 5
	for i := int64(1); i <= n; i++ {
		msg := newHeartbeatMsg(i)
		if err := c.Serialize(msg, fixver.FIX44, "US", "THEM", fixver.MsgVer44, &buf); err != nil {
			t.Fatalf("Serialize: %v", err)
		}
	}

	data := buf.Bytes()
	total := 0
	for total < len(data) {
		consumed, perr := c.Parse(data[total:])
		if perr != nil {
			t.Fatalf("Parse: %v", perr)
		}
		if consumed == 0 {
			t.Fatalf("Parse made no progress with %d bytes remaining", len(data)-total)
		}
		total += consumed
	}

	got := c.Drain()
	if len(got) != n {
		t.Fatalf("got %d messages, want %d", len(got), n)
	}
	for i, msg := range got {
		seq, err := msg.GetInt(dict.TagMsgSeqNum)
		if err != nil {
			t.Fatalf("GetInt MsgSeqNum: %v", err)
		}
		if seq != int64(i+1) {
			t.Errorf("message %d: MsgSeqNum = %d, want %d", i, seq, i+1)
		}
	}
}

// -------------------------------------------------------------------------
// TestSkipGarbage — leading bytes that cannot possibly start a message
// are silently skipped, consumed > 0 and err == nil (spec §8, codec.go
// skipGarbage).
// -------------------------------------------------------------------------

func TestSkipGarbage(t *testing.T) {
	t.Parallel()

	d := dict.Default()
	c := codec.New(d, maxMessageSize)

	var real bytes.Buffer
	msg := newHeartbeatMsg(1)
	if err := c.Serialize(msg, fixver.FIX44, "US", "THEM", fixver.MsgVer44, &real); err != nil {
		t.Fatalf("Serialize: %v", err)
	}

	garbage := []byte("garbage-before-message\x01more-garbage\x01")
	data := append(append([]byte{}, garbage...), real.Bytes()...)

	total := 0
	for {
		consumed, perr := c.Parse(data[total:])
		if perr != nil {
			t.Fatalf("Parse: %v", perr)
		}
		total += consumed
		if len(c.Drain()) > 0 || total >= len(data) {
			break
		}
		if consumed == 0 {
			t.Fatalf("Parse made no progress (stuck on garbage)")
		}
	}

	if total != len(data) {
		t.Fatalf("consumed %d of %d bytes", total, len(data))
	}
}

// -------------------------------------------------------------------------
// TestRepeatingGroupScoping — a repeating group's fields are scoped to
// its own occurrences; a tag outside the group's field set pops back to
// the enclosing scope (spec §4.1 "Repeating groups", codec.go scopeFrame
// stack).
// -------------------------------------------------------------------------

func TestRepeatingGroupScoping(t *testing.T) {
	t.Parallel()

	d := dict.Default()
	c := codec.New(d, maxMessageSize)

	logon := message.New("A")
	logon.SetInt(dict.TagMsgSeqNum, 1)
	logon.SetUTCTimestamp(dict.TagSendingTime, parsedTestTime)
	logon.Set(dict.TagEncryptMethod, "0")
	logon.SetInt(dict.TagHeartBtInt, 30)
	logon.Set(dict.TagDefaultApplVerID, "9")
	logon.SetGroup(dict.TagNoMsgTypeGrp, &message.Group{
		Occurrences: []map[dict.Tag]string{
			{dict.TagRefMsgType: "8", dict.TagMsgDirection: "S", dict.TagDefaultVerIndic: "Y"},
			{dict.TagRefMsgType: "D", dict.TagMsgDirection: "R"},
		},
	})

	var buf bytes.Buffer
	if err := c.Serialize(logon, fixver.FIXT11, "US", "THEM", fixver.MsgVer50SP2, &buf); err != nil {
		t.Fatalf("Serialize: %v", err)
	}

	consumed, perr := c.Parse(buf.Bytes())
	if perr != nil {
		t.Fatalf("Parse: %v", perr)
	}
	if consumed != buf.Len() {
		t.Fatalf("consumed %d, want %d", consumed, buf.Len())
	}

	got := c.Drain()
	if len(got) != 1 {
		t.Fatalf("got %d messages, want 1", len(got))
	}

	grp, ok := got[0].GetGroup(dict.TagNoMsgTypeGrp)
	if !ok {
		t.Fatalf("NoMsgTypeGrp missing after round-trip")
	}
	if len(grp.Occurrences) != 2 {
		t.Fatalf("got %d occurrences, want 2", len(grp.Occurrences))
	}
	if grp.Occurrences[0][dict.TagRefMsgType] != "8" {
		t.Errorf("occurrence 0 RefMsgType = %q, want %q", grp.Occurrences[0][dict.TagRefMsgType], "8")
	}
	if grp.Occurrences[1][dict.TagRefMsgType] != "D" {
		t.Errorf("occurrence 1 RefMsgType = %q, want %q", grp.Occurrences[1][dict.TagRefMsgType], "D")
	}
	// DefaultApplVerID at top level must still be present: the group's
	// scope must pop back to the message scope once NoMsgTypeGrp ends.
	if v, ok := got[0].Get(dict.TagDefaultApplVerID); !ok || v != "9" {
		t.Errorf("DefaultApplVerID = %q, %v, want \"9\", true", v, ok)
	}
}

func TestRepeatingGroupMissingFirstTag(t *testing.T) {
	t.Parallel()

	d := dict.Default()
	c := codec.New(d, maxMessageSize)

	// Hand-built Logon: NoMsgTypeGrp=1 but the very next tag is
	// MsgDirection, a group member, not the group's delimiter RefMsgType.
	body := "35=A\x0134=1\x0152=20240102-03:04:05.000\x0198=0\x01108=30\x011385=1\x01385=S\x01"
	raw := frame(t, "FIX.4.4", body)

	_, perr := c.Parse(raw)
	if perr == nil {
		t.Fatalf("expected a ParseError for group missing its first tag")
	}
	if perr.Kind != codec.MissingFirstRepeatingGroupTagAfterNumberOfRepeatingGroupTag {
		t.Errorf("Kind = %v, want MissingFirstRepeatingGroupTagAfterNumberOfRepeatingGroupTag", perr.Kind)
	}
}

// -------------------------------------------------------------------------
// TestReadDataField — a length-prefixed opaque field (RawDataLength /
// RawData) round-trips even when its raw bytes contain a literal SOH
// byte, which would otherwise terminate an ordinary SOH-delimited field
// (spec §4.1 "Length-prefixed opaque fields", codec.go readDataField).
// -------------------------------------------------------------------------

func TestReadDataField(t *testing.T) {
	t.Parallel()

	d := dict.Default()
	c := codec.New(d, maxMessageSize)

	raw := "abc\x01def"
	logon := message.New("A")
	logon.SetInt(dict.TagMsgSeqNum, 1)
	logon.SetUTCTimestamp(dict.TagSendingTime, parsedTestTime)
	logon.Set(dict.TagEncryptMethod, "0")
	logon.SetInt(dict.TagHeartBtInt, 30)
	logon.SetInt(dict.TagRawDataLength, int64(len(raw)))
	logon.Set(dict.TagRawData, raw)

	var buf bytes.Buffer
	if err := c.Serialize(logon, fixver.FIX44, "US", "THEM", fixver.MsgVer44, &buf); err != nil {
		t.Fatalf("Serialize: %v", err)
	}

	consumed, perr := c.Parse(buf.Bytes())
	if perr != nil {
		t.Fatalf("Parse: %v", perr)
	}
	if consumed != buf.Len() {
		t.Fatalf("consumed %d, want %d", consumed, buf.Len())
	}

	got := c.Drain()
	if len(got) != 1 {
		t.Fatalf("got %d messages, want 1", len(got))
	}
	gotRaw, ok := got[0].Get(dict.TagRawData)
	if !ok {
		t.Fatalf("RawData missing after round-trip")
	}
	if gotRaw != raw {
		t.Errorf("RawData = %q, want %q", gotRaw, raw)
	}
	length, err := got[0].GetInt(dict.TagRawDataLength)
	if err != nil {
		t.Fatalf("GetInt RawDataLength: %v", err)
	}
	if int(length) != len(raw) {
		t.Errorf("RawDataLength = %d, want %d", length, len(raw))
	}
}

// -------------------------------------------------------------------------
// TestParseErrorVariants — a representative sample of the ParseError
// taxonomy (spec §4.1 "Error taxonomy"), constructed as minimal
// hand-built byte sequences rather than round-tripped through Serialize,
// since Serialize never itself produces malformed wire output.
// -------------------------------------------------------------------------

func TestParseErrorVariants(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data []byte
		kind codec.ErrorKind
	}{
		{
			name: "BeginStrNotFirstTag",
			data: []byte("9=5\x018=FIX.4.4\x0110=000\x01"),
			kind: codec.BeginStrNotFirstTag,
		},
		{
			name: "BodyLengthNotSecondTag",
			data: []byte("8=FIX.4.4\x0135=0\x0110=000\x01"),
			kind: codec.BodyLengthNotSecondTag,
		},
		{
			name: "BodyLengthNotNumber",
			data: []byte("8=FIX.4.4\x019=abc\x0110=000\x01"),
			kind: codec.BodyLengthNotNumber,
		},
		{
			name: "ChecksumDoesNotMatch",
			data: frame(t, "FIX.4.4", "35=0\x0134=1\x0152=20240102-03:04:05.000\x01", true),
			kind: codec.ChecksumDoesNotMatch,
		},
		{
			name: "MsgTypeNotThirdTag",
			data: frameRaw(t, "FIX.4.4", "34=1\x0152=20240102-03:04:05.000\x01"),
			kind: codec.MsgTypeNotThirdTag,
		},
		{
			name: "MsgTypeUnknown",
			data: frameRaw(t, "FIX.4.4", "35=Z\x0134=1\x0152=20240102-03:04:05.000\x01"),
			kind: codec.MsgTypeUnknown,
		},
		{
			name: "MissingRequiredTag (Logon missing HeartBtInt)",
			data: frameRaw(t, "FIX.4.4", "35=A\x0134=1\x0152=20240102-03:04:05.000\x0198=0\x01"),
			kind: codec.MissingRequiredTag,
		},
		{
			name: "DuplicateTag",
			data: frameRaw(t, "FIX.4.4", "35=0\x0134=1\x0152=20240102-03:04:05.000\x0152=20240102-03:04:05.000\x01"),
			kind: codec.DuplicateTag,
		},
		{
			name: "UnknownTag",
			data: frameRaw(t, "FIX.4.4", "35=0\x0134=1\x0152=20240102-03:04:05.000\x0199999=x\x01"),
			kind: codec.UnknownTag,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			d := dict.Default()
			c := codec.New(d, maxMessageSize)
			_, perr := c.Parse(tc.data)
			if perr == nil {
				t.Fatalf("expected ParseError kind %v, got none", tc.kind)
			}
			if perr.Kind != tc.kind {
				t.Errorf("Kind = %v, want %v", perr.Kind, tc.kind)
			}
		})
	}
}

// frameRaw wraps body with a correct BeginString/BodyLength/Checksum so
// the body-layer failure under test is reached rather than masked by an
// earlier framing failure.
func frameRaw(t *testing.T, beginString, body string) []byte {
	t.Helper()
	return frame(t, beginString, body)
}

// frame wraps body in BeginString/BodyLength and a trailing checksum
// field, deliberately corrupting the checksum when wrong is true.
func frame(t *testing.T, beginString, body string, wrong ...bool) []byte {
	t.Helper()
	corrupt := len(wrong) > 0 && wrong[0]
	head := fmt.Sprintf("8=%s\x019=%d\x01", beginString, len(body))
	sum := 0
	for _, b := range []byte(head + body) {
		sum += int(b)
	}
	cs := sum % 256
	if corrupt {
		cs = (cs + 1) % 256
	}
	return []byte(fmt.Sprintf("%s%s10=%03d\x01", head, body, cs))
}
