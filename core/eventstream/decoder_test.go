package eventstream

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/koscakluka/delphi-call/core/events"
)

const sampleStream = "data: {\"event\":\"audio-chunk\",\"audio\":\"AAABAA==\"}\n\n" +
	": keep-alive\n\n" +
	"data: {\"event\":\"transcript\",\"text\":\"hi\"}\n\n" +
	"data: {\"event\":\"audio-chunk\",\"audio\":\"AgADAA==\"}\n\n" +
	"data: {\"event\":\"stream-end\"}\n\n"

func TestDecoderYieldsSameEventsForAnyChunking(t *testing.T) {
	expected := describe(feedAll(t, []string{sampleStream}))
	if want := []string{"audio-chunk:AAABAA==", "unrecognized:transcript", "audio-chunk:AgADAA==", "stream-end"}; strings.Join(expected, ",") != strings.Join(want, ",") {
		t.Fatalf("expected %v, got %v", want, expected)
	}

	for size := 1; size <= len(sampleStream); size++ {
		var parts []string
		for start := 0; start < len(sampleStream); start += size {
			parts = append(parts, sampleStream[start:min(start+size, len(sampleStream))])
		}

		got := describe(feedAll(t, parts))
		if strings.Join(got, ",") != strings.Join(expected, ",") {
			t.Fatalf("expected chunk size %d to yield %v, got %v", size, expected, got)
		}
	}
}

func TestDecoderSkipsMalformedFrameAndContinues(t *testing.T) {
	malformed := 0
	decoder := Decoder{OnMalformed: func([]byte, error) { malformed++ }}

	decoded := decoder.Feed([]byte(
		"data: {\"event\":\"audio-chunk\",\"audio\":\"AAA=\"}\n\n" +
			"data: {\"event\":\"audio-chunk\",\n\n" +
			"data: {\"event\":\"audio-chunk\",\"audio\":\"BBB=\"}\n\n"))

	if malformed != 1 {
		t.Fatalf("expected one malformed frame, got %d", malformed)
	}
	if got := describe(decoded); strings.Join(got, ",") != "audio-chunk:AAA=,audio-chunk:BBB=" {
		t.Fatalf("expected both good chunks, got %v", got)
	}
}

func TestDecoderKeepsIncompleteFrameBuffered(t *testing.T) {
	decoder := Decoder{}

	if decoded := decoder.Feed([]byte("data: {\"event\":\"stream-end\"}\n")); len(decoded) != 0 {
		t.Fatalf("expected no events before the delimiter, got %d", len(decoded))
	}
	if decoder.Pending() == 0 {
		t.Fatalf("expected incomplete frame to stay buffered")
	}

	decoded := decoder.Feed([]byte("\n"))
	if len(decoded) != 1 {
		t.Fatalf("expected frame to complete, got %d events", len(decoded))
	}
	if decoder.Pending() != 0 {
		t.Fatalf("expected buffer to be empty, got %d bytes", decoder.Pending())
	}
}

func TestDecoderJoinsMultipleDataLinesAndToleratesCRLF(t *testing.T) {
	decoder := Decoder{}

	decoded := decoder.Feed([]byte("event: message\r\ndata: {\"event\":\r\ndata:\"stream-end\"}\r\n\n"))
	if got := describe(decoded); strings.Join(got, ",") != "stream-end" {
		t.Fatalf("expected stream-end, got %v", got)
	}
}

func TestDecoderSplitsCRLFFramedStreamAtAnyByte(t *testing.T) {
	stream := strings.ReplaceAll(sampleStream, "\n", "\r\n")
	want := describe(feedAll(t, []string{sampleStream}))

	for cut := 0; cut <= len(stream); cut++ {
		got := describe(feedAll(t, []string{stream[:cut], stream[cut:]}))
		if strings.Join(got, ",") != strings.Join(want, ",") {
			t.Fatalf("split at %d: expected %v, got %v", cut, want, got)
		}
	}

	bytewise := make([]string, 0, len(stream))
	for i := range len(stream) {
		bytewise = append(bytewise, stream[i:i+1])
	}
	if got := describe(feedAll(t, bytewise)); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("byte at a time: expected %v, got %v", want, got)
	}
}

func TestDecoderAcceptsBareCRLineEndings(t *testing.T) {
	decoder := Decoder{}

	decoded := decoder.Feed([]byte("data: {\"event\":\"stream-end\"}\r\r"))
	if got := describe(decoded); strings.Join(got, ",") != "stream-end" {
		t.Fatalf("expected stream-end, got %v", got)
	}
	if decoder.Pending() != 0 {
		t.Fatalf("expected buffer to be empty, got %d bytes", decoder.Pending())
	}
}

func TestReadDecodesCRLFStream(t *testing.T) {
	input := "data: {\"event\":\"audio-chunk\",\"audio\":\"AAA=\"}\r\n\r\ndata: {\"event\":\"stream-end\"}\r\n\r\n"

	var got []events.StreamEvent
	for event, err := range Read(context.Background(), strings.NewReader(input)) {
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		got = append(got, event)
	}

	if names := describe(got); strings.Join(names, ",") != "audio-chunk:AAA=,stream-end" {
		t.Fatalf("expected both events, got %v", names)
	}
}

func TestReadDiscardsTrailingIncompleteFrame(t *testing.T) {
	input := "data: {\"event\":\"audio-chunk\",\"audio\":\"AAA=\"}\n\ndata: {\"event\":\"stream-"

	var got []events.StreamEvent
	for event, err := range Read(context.Background(), strings.NewReader(input)) {
		if err != nil {
			t.Fatalf("expected no error for trailing partial frame, got %v", err)
		}
		got = append(got, event)
	}

	if names := describe(got); strings.Join(names, ",") != "audio-chunk:AAA=" {
		t.Fatalf("expected only the complete frame, got %v", names)
	}
}

func TestReadYieldsTransportErrorOnce(t *testing.T) {
	failure := errors.New("connection reset")
	reader := io.MultiReader(
		strings.NewReader("data: {\"event\":\"audio-chunk\",\"audio\":\"AAA=\"}\n\n"),
		&failingReader{err: failure},
	)

	var received, errs int
	for event, err := range Read(context.Background(), reader) {
		if err != nil {
			if !errors.Is(err, failure) {
				t.Fatalf("expected %v, got %v", failure, err)
			}
			errs++
			continue
		}
		if event != nil {
			received++
		}
	}

	if received != 1 || errs != 1 {
		t.Fatalf("expected one event and one error, got %d events and %d errors", received, errs)
	}
}

func TestReadStopsWhenContextIsCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	count := 0
	for range Read(ctx, strings.NewReader(sampleStream)) {
		count++
		cancel()
	}

	if count != 1 {
		t.Fatalf("expected iteration to stop after cancellation, got %d events", count)
	}
}

func TestReadStopsWhenConsumerBreaks(t *testing.T) {
	count := 0
	for range Read(context.Background(), strings.NewReader(sampleStream)) {
		count++
		break
	}

	if count != 1 {
		t.Fatalf("expected one event before break, got %d", count)
	}
}

type failingReader struct{ err error }

func (r *failingReader) Read([]byte) (int, error) { return 0, r.err }

func feedAll(t *testing.T, parts []string) []events.StreamEvent {
	t.Helper()

	decoder := Decoder{OnMalformed: func(payload []byte, err error) {
		t.Fatalf("unexpected malformed frame %q: %v", payload, err)
	}}
	var decoded []events.StreamEvent
	for _, part := range parts {
		decoded = append(decoded, decoder.Feed([]byte(part))...)
	}
	return decoded
}

func describe(decoded []events.StreamEvent) []string {
	var out []string
	for _, event := range decoded {
		switch typedEvent := event.(type) {
		case events.StreamAudioChunk:
			out = append(out, "audio-chunk:"+typedEvent.Audio)
		case events.StreamEnd:
			out = append(out, "stream-end")
		case events.StreamUnrecognized:
			out = append(out, "unrecognized:"+typedEvent.Name)
		}
	}
	return out
}
