// Package messages emits the ordered record/state message contract on
// stdout. Messages are JSON lines; a state message must never refer to
// progress beyond records already written, which the single-writer
// design guarantees.
package messages

import (
	"io"
	"sync"
	"time"

	jsonpool "github.com/tapstream-io/tap-sailthru/pkg/json"
	"github.com/tapstream-io/tap-sailthru/pkg/state"
)

// Message types
const (
	TypeSchema = "SCHEMA"
	TypeRecord = "RECORD"
	TypeState  = "STATE"
)

// SchemaMessage declares a stream's schema and key contract
type SchemaMessage struct {
	Type          string              `json:"type"`
	Stream        string              `json:"stream"`
	Schema        jsonpool.RawMessage `json:"schema"`
	KeyProperties []string            `json:"key_properties"`
	BookmarkProps []string            `json:"bookmark_properties,omitempty"`
}

// RecordMessage carries one mapped record
type RecordMessage struct {
	Type          string                 `json:"type"`
	Stream        string                 `json:"stream"`
	Record        map[string]interface{} `json:"record"`
	TimeExtracted string                 `json:"time_extracted"`
}

// StateMessage carries the full current bookmark mapping
type StateMessage struct {
	Type  string       `json:"type"`
	Value *state.State `json:"value"`
}

// Writer serializes messages to a single output in emission order
type Writer struct {
	mu  sync.Mutex
	out io.Writer
}

// NewWriter creates a message writer over out
func NewWriter(out io.Writer) *Writer {
	return &Writer{out: out}
}

// WriteSchema emits a SCHEMA message
func (w *Writer) WriteSchema(stream string, schema jsonpool.RawMessage, keyProperties, bookmarkProperties []string) error {
	return w.write(SchemaMessage{
		Type:          TypeSchema,
		Stream:        stream,
		Schema:        schema,
		KeyProperties: keyProperties,
		BookmarkProps: bookmarkProperties,
	})
}

// WriteRecord emits a RECORD message stamped with the extraction time
func (w *Writer) WriteRecord(stream string, record map[string]interface{}, extractedAt time.Time) error {
	return w.write(RecordMessage{
		Type:          TypeRecord,
		Stream:        stream,
		Record:        record,
		TimeExtracted: extractedAt.UTC().Format(time.RFC3339Nano),
	})
}

// WriteState emits a STATE message with the full bookmark mapping
func (w *Writer) WriteState(s *state.State) error {
	return w.write(StateMessage{Type: TypeState, Value: s})
}

func (w *Writer) write(msg interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	buf := jsonpool.GetBuffer()
	defer jsonpool.PutBuffer(buf)

	enc := jsonpool.NewEncoder(buf)
	if err := enc.Encode(msg); err != nil {
		return err
	}

	_, err := w.out.Write(buf.Bytes())
	return err
}
