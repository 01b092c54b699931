package protocol

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/mattjoyce/uploader/internal/fault"
)

const (
	// MaxLineBytes caps one input record.
	MaxLineBytes = 16 << 20

	snippetBytes = 120
)

// DecodeError reports a malformed input record. Decoding may continue
// with the next line.
type DecodeError struct {
	Line    int
	Snippet string
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("line %d: %v (%q)", e.Line, e.Err, e.Snippet)
}

func (e *DecodeError) Unwrap() []error { return []error{fault.ErrDecode, e.Err} }

// Decoder reads one job per newline-terminated line.
type Decoder struct {
	r    *bufio.Reader
	line int
}

// NewDecoder creates a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReaderSize(r, 64*1024)}
}

// Next returns the next job. It returns io.EOF at end of input and a
// *DecodeError for a line that is not a valid job.
func (d *Decoder) Next() (*Job, error) {
	for {
		raw, tooLong, err := d.readLine()
		if err != nil {
			return nil, err
		}
		d.line++

		if tooLong {
			return nil, d.fail(raw, fmt.Errorf("record exceeds %d bytes", MaxLineBytes))
		}
		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 {
			continue
		}
		return d.decode(raw)
	}
}

// readLine returns one line without its terminator. A final line with no
// newline is returned as is; the following call reports io.EOF. Lines over
// MaxLineBytes are consumed and reported as tooLong with only a prefix kept.
func (d *Decoder) readLine() (line []byte, tooLong bool, err error) {
	var buf []byte
	for {
		chunk, readErr := d.r.ReadSlice('\n')
		if !tooLong {
			buf = append(buf, chunk...)
			if len(buf) > MaxLineBytes {
				tooLong = true
				buf = buf[:snippetBytes]
			}
		}
		switch {
		case readErr == nil:
			if !tooLong {
				buf = buf[:len(buf)-1]
			}
			return buf, tooLong, nil
		case errors.Is(readErr, bufio.ErrBufferFull):
			continue
		case errors.Is(readErr, io.EOF) && len(buf) > 0:
			return buf, tooLong, nil
		default:
			return nil, false, readErr
		}
	}
}

func (d *Decoder) decode(raw []byte) (*Job, error) {
	var job Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, d.fail(raw, err)
	}
	if job.Action == "" {
		return nil, d.fail(raw, errors.New("missing required field: action"))
	}
	if job.JobID == "" {
		job.JobID = uuid.NewString()
	}
	return &job, nil
}

func (d *Decoder) fail(raw []byte, err error) *DecodeError {
	snippet := raw
	if len(snippet) > snippetBytes {
		snippet = snippet[:snippetBytes]
	}
	return &DecodeError{Line: d.line, Snippet: string(snippet), Err: err}
}

// Emitter accepts outbound events.
type Emitter interface {
	Emit(Event)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(Event)

// Emit calls f(ev).
func (f EmitterFunc) Emit(ev Event) { f(ev) }

// Encoder writes one event per line. It is safe for concurrent use; the
// lock covers a single Write call and nothing else.
type Encoder struct {
	mu       sync.Mutex
	w        io.Writer
	failures atomic.Int64
}

// NewEncoder creates an Encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode serializes ev and writes it as one line.
func (e *Encoder) Encode(ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		e.failures.Add(1)
		return fmt.Errorf("failed to encode event: %w", err)
	}
	payload = append(payload, '\n')

	e.mu.Lock()
	_, err = e.w.Write(payload)
	e.mu.Unlock()

	if err != nil {
		e.failures.Add(1)
		return fmt.Errorf("failed to write event: %w", err)
	}
	return nil
}

// Emit implements Emitter. Write failures are counted, not returned.
func (e *Encoder) Emit(ev Event) {
	_ = e.Encode(ev)
}

// Failures returns how many events could not be written.
func (e *Encoder) Failures() int64 {
	return e.failures.Load()
}

// Tee fans each event out to every non-nil emitter in order.
func Tee(emitters ...Emitter) Emitter {
	var live []Emitter
	for _, em := range emitters {
		if em != nil {
			live = append(live, em)
		}
	}
	if len(live) == 1 {
		return live[0]
	}
	return EmitterFunc(func(ev Event) {
		for _, em := range live {
			em.Emit(ev)
		}
	})
}
