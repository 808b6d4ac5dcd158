package dict

import "github.com/fixdaemon/gofix/internal/fix/fixver"

// mf is a small constructor helper to keep the message table below
// readable: looks up tag in fieldTable and wraps it as a MessageField.
func mf(tag Tag, required bool) *MessageField {
	return &MessageField{Field: fieldTable[tag], Required: required}
}

// possDupRequiresOrigSendingTime implements the one conditional-required
// predicate named explicitly in spec §3: "OrigSendingTime is required
// iff PossDupFlag=Y".
func possDupRequiresOrigSendingTime(lookup func(Tag) (string, bool)) bool {
	v, ok := lookup(TagPossDupFlag)
	return ok && v == "Y"
}

// standardHeader lists the header fields common to every message beyond
// the fixed-position BeginString/BodyLength/MsgType/SenderCompID/
// TargetCompID/ApplVerID, which the codec validates directly by wire
// position rather than through this table (spec §3 invariants).
//
//nolint:gochecknoglobals // dictionary data tables are intentionally package-level.
var standardHeader = []*MessageField{
	mf(TagMsgSeqNum, true),
	mf(TagPossDupFlag, false),
	mf(TagPossResend, false),
	mf(TagSendingTime, true),
	{Field: fieldTable[TagOrigSendTime], Required: false, CondRequired: possDupRequiresOrigSendingTime},
}

// standardTrailer lists trailer fields other than Checksum, which is
// fixed-position and handled directly by the codec. This engine carries
// no signature fields (payload encryption is out of scope, spec §1).
//
//nolint:gochecknoglobals // dictionary data tables are intentionally package-level.
var standardTrailer = []*MessageField{}

// messageTable defines every message type this engine implements: the
// eight administrative message types named in spec §6.
//
//nolint:gochecknoglobals // dictionary data tables are intentionally package-level.
var messageTable = []*MessageDescriptor{
	{
		MsgTypeStr: "0",
		Name:       "Heartbeat",
		Fields:     []*MessageField{mf(TagTestReqID, false)},
	},
	{
		MsgTypeStr: "1",
		Name:       "TestRequest",
		Fields:     []*MessageField{mf(TagTestReqID, true)},
	},
	{
		MsgTypeStr: "2",
		Name:       "ResendRequest",
		Fields:     []*MessageField{mf(TagBeginSeqNo, true), mf(TagEndSeqNo, true)},
	},
	{
		MsgTypeStr: "3",
		Name:       "Reject",
		Fields: []*MessageField{
			mf(TagRefSeqNum, true),
			mf(TagRefTagID, false),
			mf(TagRefMsgType, false),
			mf(TagSessionRejRsn, false),
			mf(TagText, false),
		},
	},
	{
		MsgTypeStr: "4",
		Name:       "SequenceReset",
		Fields:     []*MessageField{mf(TagGapFillFlag, false), mf(TagNewSeqNo, true)},
	},
	{
		MsgTypeStr: "5",
		Name:       "Logout",
		Fields:     []*MessageField{mf(TagText, false)},
	},
	{
		MsgTypeStr: "A",
		Name:       "Logon",
		Fields: []*MessageField{
			mf(TagEncryptMethod, true),
			mf(TagHeartBtInt, true),
			mf(TagRawDataLength, false),
			mf(TagRawData, false),
			{Field: fieldTable[TagResetSeqNumFlag], Required: false, MinVersion: fixver.MsgVer41},
			{Field: fieldTable[TagDefaultApplVerID], Required: false, MinVersion: fixver.MsgVer50},
			{Field: fieldTable[TagNoMsgTypeGrp], Required: false, MinVersion: fixver.MsgVer50},
		},
	},
	{
		MsgTypeStr: "j",
		Name:       "BusinessMessageReject",
		Fields: []*MessageField{
			mf(TagRefSeqNum, false),
			mf(TagRefMsgType, false),
			mf(TagBusinessRejRefID, false),
			mf(TagBusinessRejRsn, true),
			mf(TagText, false),
		},
	},
}

// standardMsgTypes records every MsgType defined anywhere in the FIX
// standard, whether or not this engine implements it, so the codec can
// distinguish "standard but unimplemented" (-> BusinessMessageReject)
// from "genuinely unknown" (-> Reject InvalidMsgType) per spec §7 item
// 3. Administrative types carry their real name; the rest are business
// message types intentionally left undescribed (spec §1 Non-goals:
// application-layer business logic is out of scope).
//
//nolint:gochecknoglobals // dictionary data tables are intentionally package-level.
var standardMsgTypes = map[string]string{
	"0": "Heartbeat",
	"1": "TestRequest",
	"2": "ResendRequest",
	"3": "Reject",
	"4": "SequenceReset",
	"5": "Logout",
	"A": "Logon",
	"j": "BusinessMessageReject",

	"6": "IndicationOfInterest",
	"7": "Advertisement",
	"8": "ExecutionReport",
	"9": "OrderCancelReject",
	"B": "News",
	"C": "Email",
	"D": "NewOrderSingle",
	"E": "NewOrderList",
	"F": "OrderCancelRequest",
	"G": "OrderCancelReplaceRequest",
	"H": "OrderStatusRequest",
	"R": "QuoteRequest",
	"S": "Quote",
	"V": "MarketDataRequest",
	"W": "MarketDataSnapshotFullRefresh",
	"X": "MarketDataIncrementalRefresh",
}

// Default returns the built-in Dictionary covering every administrative
// message type and the standard header/trailer, across FIX 4.0-4.4 and
// FIXT.1.1/FIX.5.0 family versions.
func Default() *Dictionary {
	return New(fieldTable, messageTable, standardHeader, standardTrailer, standardMsgTypes)
}
