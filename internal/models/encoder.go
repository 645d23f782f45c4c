package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

// DefaultSourceID is the source identifier used when none is configured.
const DefaultSourceID = "drasi"

// SourceIDEnvVar names the environment variable supplying the source
// identifier for the envelope's db field.
const SourceIDEnvVar = "SOURCE_ID"

// Encoder renders a SourceChange into the canonical change envelope:
//
//	{"op":"i","payload":{"after":{...element...},"source":{"db":...,"lsn":...,"table":...,"ts_ns":...}},
//	 "reactivatorStart_ns":...,"reactivatorEnd_ns":...,"metadata":{...}}
//
// The element is nested under "after" for creates and updates, "before" for
// deletes, and metadata is omitted when the record carries none. Field order
// is fixed so output stays diff-friendly. Encoding is a pure transform;
// the only failure mode is a property value that cannot be represented as
// JSON, which is an upstream defect and is surfaced to the caller.
type Encoder struct {
	sourceID func() string
}

// NewEncoder returns an encoder that resolves the source id from the
// SOURCE_ID environment variable on every encode, falling back to
// DefaultSourceID when unset.
func NewEncoder() Encoder {
	return Encoder{sourceID: sourceIDFromEnv}
}

// NewEncoderWithSourceID returns an encoder with a fixed, injected source
// id. Use this form when the id is resolved once from configuration.
func NewEncoderWithSourceID(id string) Encoder {
	return Encoder{sourceID: func() string { return id }}
}

func sourceIDFromEnv() string {
	if id := os.Getenv(SourceIDEnvVar); id != "" {
		return id
	}
	return DefaultSourceID
}

// Encode serializes a finalized change record into the envelope published
// to the transport.
func (e Encoder) Encode(c *SourceChange) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(`{"op":"`)
	buf.WriteString(c.op.Tag())
	buf.WriteString(`","payload":{"`)
	buf.WriteString(c.op.elementField())
	buf.WriteString(`":`)

	element, err := json.Marshal(c.element)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s element: %w", c.element.Table(), err)
	}
	buf.Write(element)

	buf.WriteString(`,"source":`)
	e.writeSource(&buf, c)
	buf.WriteString(`},"reactivatorStart_ns":`)
	buf.Write(strconv.AppendUint(nil, c.reactivatorStartNs, 10))
	buf.WriteString(`,"reactivatorEnd_ns":`)
	buf.Write(strconv.AppendUint(nil, c.reactivatorEndNs, 10))

	if c.metadata != nil {
		buf.WriteString(`,"metadata":`)
		metadata, err := json.Marshal(c.metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to encode metadata: %w", err)
		}
		buf.Write(metadata)
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (e Encoder) writeSource(buf *bytes.Buffer, c *SourceChange) {
	buf.WriteString(`{"db":`)
	db, _ := json.Marshal(e.sourceID())
	buf.Write(db)
	buf.WriteString(`,"lsn":`)
	buf.Write(strconv.AppendUint(nil, c.seq, 10))
	buf.WriteString(`,"table":"`)
	buf.WriteString(c.element.Table())
	buf.WriteString(`","ts_ns":`)
	buf.Write(strconv.AppendUint(nil, c.sourceNs, 10))
	buf.WriteByte('}')
}
