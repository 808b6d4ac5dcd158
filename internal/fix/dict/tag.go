package dict

// Tag is a FIX field tag: a process-wide-unique unsigned integer
// identifier (spec: "Field tag").
type Tag uint32

// Standard header / trailer tags. These occupy fixed wire positions (see
// codec's framing rules) or appear in every message regardless of
// MsgType, so they live outside any single MessageDescriptor's field
// list.
const (
	TagBeginString  Tag = 8
	TagBodyLength   Tag = 9
	TagMsgType      Tag = 35
	TagSenderCompID Tag = 49
	TagTargetCompID Tag = 56
	TagApplVerID    Tag = 1128
	TagMsgSeqNum    Tag = 34
	TagPossDupFlag  Tag = 43
	TagPossResend   Tag = 97
	TagSendingTime  Tag = 52
	TagOrigSendTime Tag = 122
	TagChecksum     Tag = 10
	TagSignature    Tag = 89
	TagSignatureLen Tag = 93
)

// Administrative / session-layer message body tags (spec §4.1, §4.2).
const (
	TagEncryptMethod    Tag = 98
	TagHeartBtInt       Tag = 108
	TagRawDataLength    Tag = 95
	TagRawData          Tag = 96
	TagResetSeqNumFlag  Tag = 141
	TagDefaultApplVerID Tag = 1137
	TagNoMsgTypeGrp     Tag = 1385
	TagRefMsgType       Tag = 372
	TagMsgDirection     Tag = 385
	TagDefaultVerIndic  Tag = 1410

	TagTestReqID Tag = 112

	TagBeginSeqNo Tag = 7
	TagEndSeqNo   Tag = 16

	TagRefSeqNum     Tag = 45
	TagRefTagID      Tag = 371
	TagSessionRejRsn Tag = 373
	TagText          Tag = 58

	TagGapFillFlag Tag = 123
	TagNewSeqNo    Tag = 36

	TagBusinessRejRefID Tag = 379
	TagBusinessRejRsn   Tag = 380
	TagNoHops           Tag = 627
	TagEncodedTextLen   Tag = 354
	TagEncodedText      Tag = 355
)
