package stream

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// DoneSentinel is the final line written after the terminal event.
const DoneSentinel = "[DONE]"

// Encoder writes normalized events as newline-delimited JSON, flushing after
// every line when the underlying writer supports it.
type Encoder struct {
	w     io.Writer
	flush http.Flusher
}

// NewEncoder wraps w. When w is an http.ResponseWriter the encoder flushes
// each event so deltas reach the client immediately.
func NewEncoder(w io.Writer) *Encoder {
	e := &Encoder{w: w}
	if f, ok := w.(http.Flusher); ok {
		e.flush = f
	}
	return e
}

// Encode writes one event line.
func (e *Encoder) Encode(ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("stream: encode event: %w", err)
	}
	if _, err := e.w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("stream: write event: %w", err)
	}
	if e.flush != nil {
		e.flush.Flush()
	}
	return nil
}

// Done writes the terminal sentinel line.
func (e *Encoder) Done() error {
	if _, err := io.WriteString(e.w, DoneSentinel+"\n"); err != nil {
		return fmt.Errorf("stream: write sentinel: %w", err)
	}
	if e.flush != nil {
		e.flush.Flush()
	}
	return nil
}
