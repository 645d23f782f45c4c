package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// SourceElement is a captured graph element, either a Node or a Relation.
// Consumers tell the variants apart structurally (a Relation carries
// startId/endId) and by the "table" field of the source block.
type SourceElement interface {
	json.Marshaler

	// Table returns the source table tag: "node" or "rel".
	Table() string
}

// Node is a captured graph node.
type Node struct {
	ID         string
	Labels     []string
	Properties *PropertyMap
}

func (n Node) Table() string { return "node" }

func (n Node) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if err := writeElementCore(&buf, n.ID, n.Labels, n.Properties); err != nil {
		return nil, err
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Relation is a captured graph relationship between two nodes.
type Relation struct {
	ID         string
	Labels     []string
	Properties *PropertyMap
	StartID    string
	EndID      string
}

func (r Relation) Table() string { return "rel" }

func (r Relation) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if err := writeElementCore(&buf, r.ID, r.Labels, r.Properties); err != nil {
		return nil, err
	}
	buf.WriteString(`,"startId":`)
	if err := writeJSONValue(&buf, r.StartID); err != nil {
		return nil, err
	}
	buf.WriteString(`,"endId":`)
	if err := writeJSONValue(&buf, r.EndID); err != nil {
		return nil, err
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// writeElementCore writes the fields shared by both variants, in wire order:
// id, labels, properties.
func writeElementCore(buf *bytes.Buffer, id string, labels []string, props *PropertyMap) error {
	buf.WriteString(`"id":`)
	if err := writeJSONValue(buf, id); err != nil {
		return err
	}
	buf.WriteString(`,"labels":`)
	if labels == nil {
		labels = []string{}
	}
	if err := writeJSONValue(buf, labels); err != nil {
		return err
	}
	buf.WriteString(`,"properties":`)
	if props == nil {
		buf.WriteString("{}")
		return nil
	}
	return writeJSONValue(buf, props)
}

func writeJSONValue(buf *bytes.Buffer, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	buf.Write(data)
	return nil
}
