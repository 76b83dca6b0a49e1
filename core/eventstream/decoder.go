package eventstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"iter"

	"github.com/koscakluka/delphi-call/core/events"
)

var (
	eventDelimiter = []byte("\n\n")
	dataPrefix     = []byte("data:")
)

// Decoder reassembles server-sent events from arbitrarily split byte chunks.
//
// The zero value is ready to use. A Decoder is not safe for concurrent use.
type Decoder struct {
	buf []byte
	// afterCR is set when the last byte fed was '\r', so a '\n' opening the
	// next chunk completes a CRLF instead of starting a new line.
	afterCR bool

	// OnMalformed is called for every frame whose payload is not valid JSON.
	// The frame is skipped either way.
	OnMalformed func(payload []byte, err error)
}

// Feed appends p to the pending buffer and returns every event completed by
// it, in arrival order. An incomplete trailing frame stays buffered.
//
// CRLF, CR and LF are all accepted as line endings.
func (d *Decoder) Feed(p []byte) []events.StreamEvent {
	d.appendNormalized(p)

	var decoded []events.StreamEvent
	for {
		end := bytes.Index(d.buf, eventDelimiter)
		if end < 0 {
			break
		}

		frame := d.buf[:end]
		if event, ok := d.parseFrame(frame); ok {
			decoded = append(decoded, event)
		}
		d.buf = d.buf[end+len(eventDelimiter):]
	}

	// Compact so a long stream does not pin every frame it has seen.
	if len(d.buf) == 0 {
		d.buf = nil
	} else {
		d.buf = append([]byte(nil), d.buf...)
	}

	return decoded
}

// Pending reports how many bytes of an incomplete frame are buffered.
func (d *Decoder) Pending() int { return len(d.buf) }

// Reset drops the incomplete frame, if any.
func (d *Decoder) Reset() {
	d.buf = nil
	d.afterCR = false
}

func (d *Decoder) appendNormalized(p []byte) {
	for _, b := range p {
		switch {
		case b == '\r':
			d.buf = append(d.buf, '\n')
			d.afterCR = true
		case b == '\n' && d.afterCR:
			d.afterCR = false
		default:
			d.buf = append(d.buf, b)
			d.afterCR = false
		}
	}
}

func (d *Decoder) parseFrame(frame []byte) (events.StreamEvent, bool) {
	payload, ok := framePayload(frame)
	if !ok {
		return nil, false
	}

	var wire events.WireEvent
	if err := json.Unmarshal(payload, &wire); err != nil {
		if d.OnMalformed != nil {
			d.OnMalformed(payload, err)
		}
		return nil, false
	}

	return events.FromWire(wire), true
}

// framePayload joins the data lines of one frame. Frames without data lines
// (comments, keep-alives) have no payload.
func framePayload(frame []byte) ([]byte, bool) {
	var payload []byte
	found := false
	for line := range bytes.SplitSeq(frame, []byte("\n")) {
		if !bytes.HasPrefix(line, dataPrefix) {
			continue
		}

		data := bytes.TrimPrefix(line[len(dataPrefix):], []byte(" "))
		if found {
			payload = append(payload, '\n')
		}
		payload = append(payload, data...)
		found = true
	}
	return payload, found
}

const readBufferSize = 4096

// Read lazily decodes the reply stream in r. Events are yielded in arrival
// order; a malformed frame is logged and skipped without ending the stream.
//
// The sequence ends when r is exhausted, when ctx is done or when the
// consumer stops. A trailing incomplete frame at end of stream is discarded.
// A read error other than [io.EOF] is yielded once as the final element.
//
// The sequence reads r directly and can therefore be ranged over only once.
func Read(ctx context.Context, r io.Reader) iter.Seq2[events.StreamEvent, error] {
	return func(yield func(events.StreamEvent, error) bool) {
		malformedFrames, _ := meter.Int64Counter("eventstream.malformed_frames")
		decoder := Decoder{OnMalformed: func(payload []byte, err error) {
			logger.WarnContext(ctx, "skipping malformed stream event",
				"error", err,
				"payload_bytes", len(payload))
			if malformedFrames != nil {
				malformedFrames.Add(ctx, 1)
			}
		}}

		buf := make([]byte, readBufferSize)
		for {
			if ctx.Err() != nil {
				return
			}

			n, err := r.Read(buf)
			if n > 0 {
				for _, event := range decoder.Feed(buf[:n]) {
					if ctx.Err() != nil {
						return
					}
					if !yield(event, nil) {
						return
					}
				}
			}

			if err != nil {
				if errors.Is(err, io.EOF) {
					if pending := decoder.Pending(); pending > 0 {
						logger.DebugContext(ctx, "discarding incomplete stream event", "pending_bytes", pending)
					}
					return
				}
				if ctx.Err() != nil {
					return
				}
				yield(nil, err)
				return
			}
		}
	}
}
