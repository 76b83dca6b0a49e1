// Package events defines the typed event contract of a call.
//
// Two families of events exist:
//
//   - stream.*: records parsed from the upstream server-sent-event stream of a
//     single exchange. They form a tagged union over [StreamAudioChunk],
//     [StreamEnd] and [StreamUnrecognized]; all of them satisfy
//     [StreamEvent]. Their wire shape is [WireEvent].
//   - call.*, exchange.*, playback.*, recording.*, session.*: lifecycle
//     notifications a call session emits to its front-end.
//
// stream events
//
//   - StreamAudioChunk (stream.audio_chunk): base64 PCM16 payload, wire name
//     "audio-chunk".
//   - StreamEnd (stream.end): the upstream finished replying, wire name
//     "stream-end".
//   - StreamUnrecognized (stream.unrecognized): any other wire name; ignored by
//     consumers.
//
// session events
//
//   - CallStarted (call.started) / CallEnded (call.ended): upstream call
//     lifecycle, keyed by call id.
//   - StateChanged (session.state_changed): session state transition.
//   - ExchangeStarted (exchange.started) / ExchangeEnded (exchange.ended): one
//     outgoing message and its streamed reply.
//   - PlaybackStateChanged (playback.state_changed): the output device started
//     or stopped rendering.
//   - RecordingStateChanged (recording.state_changed): microphone capture
//     started or stopped.
//   - SessionError (session.error): a failure surfaced to the user.
package events
