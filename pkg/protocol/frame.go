package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// Field is one attribute written by a pose.
type Field struct {
	Name  string
	Value string
}

// Pose is a sparse attribute update of one scene node. Fields keep the order
// in which they appear on the wire and never include the id.
type Pose struct {
	ID     string
	Fields []Field
}

// Get returns the value of the named field.
func (p Pose) Get(name string) (string, bool) {
	for _, f := range p.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

// Frame is the content of an application/json message and of one recorded
// animation step. Time is in milliseconds.
type Frame struct {
	Time  float64 `json:"time"`
	Poses []Pose  `json:"poses,omitempty"`
}

var errPoseWithoutID = errors.New("pose without id")

// UnmarshalJSON decodes {"id": 12, "translation": "0 1 0", ...}. Non-string
// values are kept in their JSON text form.
func (p *Pose) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("pose must be an object, got %v", tok)
	}

	var pose Pose
	hasID := false
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected pose key %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("pose field %q: %w", key, err)
		}
		value := rawString(raw)
		if key == "id" {
			pose.ID = value
			hasID = value != ""
			continue
		}
		pose.Fields = append(pose.Fields, Field{Name: key, Value: value})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	if !hasID {
		return errPoseWithoutID
	}
	*p = pose
	return nil
}

// MarshalJSON writes the id as a number when it is numeric.
func (p Pose) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"id":`)
	if _, err := strconv.ParseUint(p.ID, 10, 64); err == nil {
		buf.WriteString(p.ID)
	} else {
		id, _ := json.Marshal(p.ID)
		buf.Write(id)
	}
	for _, f := range p.Fields {
		name, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		buf.WriteByte(',')
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func rawString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(bytes.TrimSpace(raw))
}
