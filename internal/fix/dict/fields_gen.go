package dict

import "github.com/fixdaemon/gofix/internal/fix/fixver"

// fieldTable is the process-wide field descriptor table. In a language
// with compile-time derive macros this would be generated from a schema
// file (spec §9 Design Note (a)); here it is a plain literal, built once
// at init and shared read-only across every Dictionary instance and
// every session (spec §5 "Shared-resource policy").
//
//nolint:gochecknoglobals // dictionary data tables are intentionally package-level.
var fieldTable = map[Tag]*FieldDescriptor{
	TagBeginString:  {Tag: TagBeginString, Name: "BeginString", Kind: KindString, MinVersion: fixver.MsgVer40},
	TagBodyLength:   {Tag: TagBodyLength, Name: "BodyLength", Kind: KindLength, MinVersion: fixver.MsgVer40},
	TagMsgType:      {Tag: TagMsgType, Name: "MsgType", Kind: KindString, MinVersion: fixver.MsgVer40},
	TagSenderCompID: {Tag: TagSenderCompID, Name: "SenderCompID", Kind: KindString, MinVersion: fixver.MsgVer40},
	TagTargetCompID: {Tag: TagTargetCompID, Name: "TargetCompID", Kind: KindString, MinVersion: fixver.MsgVer40},
	TagApplVerID: {
		Tag: TagApplVerID, Name: "ApplVerID", Kind: KindEnum, MinVersion: fixver.MsgVer50,
		Enum: NewOpenEnum("2", "3", "4", "5", "6", "7", "8", "9"),
	},
	TagMsgSeqNum:   {Tag: TagMsgSeqNum, Name: "MsgSeqNum", Kind: KindSeqNum, MinVersion: fixver.MsgVer40},
	TagPossDupFlag: {Tag: TagPossDupFlag, Name: "PossDupFlag", Kind: KindBool, MinVersion: fixver.MsgVer40},
	TagPossResend:  {Tag: TagPossResend, Name: "PossResend", Kind: KindBool, MinVersion: fixver.MsgVer40},
	TagSendingTime: {Tag: TagSendingTime, Name: "SendingTime", Kind: KindUTCTimestamp, MinVersion: fixver.MsgVer40},
	TagOrigSendTime: {
		Tag: TagOrigSendTime, Name: "OrigSendingTime", Kind: KindUTCTimestamp, MinVersion: fixver.MsgVer40,
	},
	TagChecksum: {Tag: TagChecksum, Name: "CheckSum", Kind: KindString, MinVersion: fixver.MsgVer40},

	TagEncryptMethod: {
		Tag: TagEncryptMethod, Name: "EncryptMethod", Kind: KindEnum, MinVersion: fixver.MsgVer40,
		Enum: NewClosedEnum("0", "1", "2", "3", "4", "5", "6"),
	},
	TagHeartBtInt:    {Tag: TagHeartBtInt, Name: "HeartBtInt", Kind: KindInt, MinVersion: fixver.MsgVer40},
	TagRawDataLength: {Tag: TagRawDataLength, Name: "RawDataLength", Kind: KindLength, MinVersion: fixver.MsgVer40},
	TagRawData: {
		Tag: TagRawData, Name: "RawData", Kind: KindData, MinVersion: fixver.MsgVer40, LengthTag: TagRawDataLength,
	},
	TagResetSeqNumFlag: {
		Tag: TagResetSeqNumFlag, Name: "ResetSeqNumFlag", Kind: KindBool, MinVersion: fixver.MsgVer41,
	},
	TagDefaultApplVerID: {
		Tag: TagDefaultApplVerID, Name: "DefaultApplVerID", Kind: KindEnum, MinVersion: fixver.MsgVer50,
		Enum: NewOpenEnum("2", "3", "4", "5", "6", "7", "8", "9"),
	},
	TagRefMsgType: {Tag: TagRefMsgType, Name: "RefMsgType", Kind: KindString, MinVersion: fixver.MsgVer40},
	TagMsgDirection: {
		Tag: TagMsgDirection, Name: "MsgDirection", Kind: KindChar, MinVersion: fixver.MsgVer50,
		Enum: NewClosedEnum("S", "R"),
	},
	TagDefaultVerIndic: {
		Tag: TagDefaultVerIndic, Name: "DefaultVerIndicator", Kind: KindBool, MinVersion: fixver.MsgVer50,
	},
	TagTestReqID:  {Tag: TagTestReqID, Name: "TestReqID", Kind: KindString, MinVersion: fixver.MsgVer40},
	TagBeginSeqNo: {Tag: TagBeginSeqNo, Name: "BeginSeqNo", Kind: KindSeqNum, MinVersion: fixver.MsgVer40},
	TagEndSeqNo:   {Tag: TagEndSeqNo, Name: "EndSeqNo", Kind: KindSeqNum, MinVersion: fixver.MsgVer40},
	TagRefSeqNum:  {Tag: TagRefSeqNum, Name: "RefSeqNum", Kind: KindSeqNum, MinVersion: fixver.MsgVer40},
	TagRefTagID:   {Tag: TagRefTagID, Name: "RefTagID", Kind: KindInt, MinVersion: fixver.MsgVer42},
	TagSessionRejRsn: {
		Tag: TagSessionRejRsn, Name: "SessionRejectReason", Kind: KindEnum, MinVersion: fixver.MsgVer42,
		Enum: NewClosedEnum("0", "1", "2", "3", "4", "5", "6", "7", "8", "9", "10", "11", "99"),
	},
	TagText:       {Tag: TagText, Name: "Text", Kind: KindString, MinVersion: fixver.MsgVer40},
	TagGapFillFlag: {Tag: TagGapFillFlag, Name: "GapFillFlag", Kind: KindBool, MinVersion: fixver.MsgVer40},
	TagNewSeqNo:   {Tag: TagNewSeqNo, Name: "NewSeqNo", Kind: KindSeqNum, MinVersion: fixver.MsgVer40},

	TagBusinessRejRefID: {
		Tag: TagBusinessRejRefID, Name: "BusinessRejectRefID", Kind: KindString, MinVersion: fixver.MsgVer42,
	},
	TagBusinessRejRsn: {
		Tag: TagBusinessRejRsn, Name: "BusinessRejectReason", Kind: KindEnum, MinVersion: fixver.MsgVer42,
		Enum: NewClosedEnum("0", "1", "2", "3", "4", "5", "6"),
	},
	TagEncodedTextLen: {Tag: TagEncodedTextLen, Name: "EncodedTextLen", Kind: KindLength, MinVersion: fixver.MsgVer42},
	TagEncodedText: {
		Tag: TagEncodedText, Name: "EncodedText", Kind: KindData, MinVersion: fixver.MsgVer42,
		LengthTag: TagEncodedTextLen,
	},

	TagNoMsgTypeGrp: {
		Tag: TagNoMsgTypeGrp, Name: "NoMsgTypeGrp", Kind: KindNumGroup, MinVersion: fixver.MsgVer50,
		Group: &GroupDescriptor{
			Delimiter: TagRefMsgType,
			Fields:    map[Tag]*MessageField{},
		},
	},
}

// init wires NoMsgTypeGrp's member field set once fieldTable is fully
// built, since the group reuses the same top-level RefMsgType/
// MsgDirection/DefaultVerIndicator descriptors rather than duplicating
// them.
func init() {
	grp := fieldTable[TagNoMsgTypeGrp].Group
	grp.Fields[TagRefMsgType] = &MessageField{Field: fieldTable[TagRefMsgType], Required: true}
	grp.Fields[TagMsgDirection] = &MessageField{Field: fieldTable[TagMsgDirection], Required: true}
	grp.Fields[TagDefaultVerIndic] = &MessageField{Field: fieldTable[TagDefaultVerIndic], Required: false}
}
