package errors

// Kind classifies a failure by how far it propagates during a sync run.
type Kind int

const (
	// KindUnknown is an unmarked error. The engine treats it like KindItem.
	KindUnknown Kind = iota
	// KindFatal aborts the whole run: configuration, harvest, PID list input.
	KindFatal
	// KindItem fails one top-level identifier; the run continues.
	KindItem
	// KindPartial means some nodes of an entity tree were written and some were not.
	KindPartial
	// KindAbsent is an expected-absent condition, such as a missing optional stream.
	KindAbsent
)

func (k Kind) String() string {
	switch k {
	case KindFatal:
		return "fatal"
	case KindItem:
		return "item"
	case KindPartial:
		return "partial"
	case KindAbsent:
		return "absent"
	default:
		return "unknown"
	}
}

// Reference marks. Messages must stay distinct: cockroachdb/errors compares
// marks by message and type.
var (
	markFatal   = New("regalsync: fatal failure")
	markItem    = New("regalsync: item failure")
	markPartial = New("regalsync: partial failure")
	markAbsent  = New("regalsync: expected absence")
)

// MarkFatal marks err as aborting the run. Returns nil for a nil err.
func MarkFatal(err error) error { return markKind(err, markFatal) }

// MarkItem marks err as failing a single item.
func MarkItem(err error) error { return markKind(err, markItem) }

// MarkPartial marks err as a partially applied item.
func MarkPartial(err error) error { return markKind(err, markPartial) }

// MarkAbsent marks err as an expected absence that callers may ignore.
func MarkAbsent(err error) error { return markKind(err, markAbsent) }

func markKind(err, ref error) error {
	if err == nil {
		return nil
	}
	return Mark(err, ref)
}

// KindOf reports the outermost kind mark found on err. Fatal wins over any
// other mark so a fatal cause is never downgraded by a later wrapper.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case Is(err, markFatal):
		return KindFatal
	case Is(err, markPartial):
		return KindPartial
	case Is(err, markItem):
		return KindItem
	case Is(err, markAbsent):
		return KindAbsent
	default:
		return KindUnknown
	}
}

// IsFatal reports whether err must abort the run.
func IsFatal(err error) bool { return KindOf(err) == KindFatal }

// IsAbsent reports whether err only signals an expected absence.
func IsAbsent(err error) bool { return KindOf(err) == KindAbsent }
