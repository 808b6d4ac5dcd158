package dict

// Kind is the value-kind of a field descriptor (spec §3: "Value-kind is
// one of: integer, sequence-number, length, boolean (Y/N), character,
// string, opaque bytes (with a paired length-prefix tag), UTC timestamp,
// local date, enumerated (open or closed), or repeating-group count.").
type Kind uint8

const (
	KindInt Kind = iota
	KindSeqNum
	KindLength
	KindBool
	KindChar
	KindString
	KindData
	KindUTCTimestamp
	KindLocalDate
	KindEnum
	KindNumGroup
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindSeqNum:
		return "seqnum"
	case KindLength:
		return "length"
	case KindBool:
		return "bool"
	case KindChar:
		return "char"
	case KindString:
		return "string"
	case KindData:
		return "data"
	case KindUTCTimestamp:
		return "utc-timestamp"
	case KindLocalDate:
		return "local-date"
	case KindEnum:
		return "enum"
	case KindNumGroup:
		return "num-group"
	default:
		return "unknown"
	}
}
