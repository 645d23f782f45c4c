package models

// ChangeOp is the kind of change captured from the source.
type ChangeOp int

const (
	OpCreate ChangeOp = iota
	OpUpdate
	OpDelete
)

// Tag returns the single-character wire tag for the operation.
func (op ChangeOp) Tag() string {
	switch op {
	case OpUpdate:
		return "u"
	case OpDelete:
		return "d"
	default:
		return "i"
	}
}

func (op ChangeOp) String() string {
	switch op {
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	default:
		return "create"
	}
}

// elementField is the payload field the element is nested under: deletes
// carry the before image, creates and updates the after image.
func (op ChangeOp) elementField() string {
	if op == OpDelete {
		return "before"
	}
	return "after"
}

// SourceChange is a single captured change, ready to be encoded into the
// wire envelope. It is constructed when capture of the change starts,
// finalized once with the capture-end timestamp, then encoded and discarded.
// All fields except the capture-end timestamp are immutable after
// construction.
type SourceChange struct {
	op                 ChangeOp
	element            SourceElement
	metadata           *PropertyMap
	reactivatorStartNs uint64
	reactivatorEndNs   uint64
	sourceNs           uint64
	seq                uint64
}

// NewSourceChange creates a change record. reactivatorStartNs is the
// nanosecond timestamp at which capture started, sourceNs the change time
// reported by the source itself, seq the monotonic position in the source's
// change log. metadata may be nil; a nil metadata map is omitted entirely
// from the encoded envelope. No validation is performed here.
func NewSourceChange(op ChangeOp, element SourceElement, reactivatorStartNs, sourceNs uint64, seq uint64, metadata *PropertyMap) *SourceChange {
	return &SourceChange{
		op:                 op,
		element:            element,
		metadata:           metadata,
		reactivatorStartNs: reactivatorStartNs,
		sourceNs:           sourceNs,
		seq:                seq,
	}
}

// SetReactivatorEndNs records the capture-end timestamp. Call it after the
// capture completes and before encoding. Calling it again overwrites the
// previous value; a record that is never finalized encodes a zero end
// timestamp.
func (c *SourceChange) SetReactivatorEndNs(ns uint64) {
	c.reactivatorEndNs = ns
}

// Op returns the operation kind.
func (c *SourceChange) Op() ChangeOp { return c.op }

// Element returns the captured element.
func (c *SourceChange) Element() SourceElement { return c.element }

// Seq returns the source log sequence number.
func (c *SourceChange) Seq() uint64 { return c.seq }

// MarshalJSON encodes the change with the default encoder, which resolves
// the source id from the environment at encode time.
func (c *SourceChange) MarshalJSON() ([]byte, error) {
	return NewEncoder().Encode(c)
}
