package call

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidState is returned when an operation is not allowed in the
	// current session state.
	ErrInvalidState = errors.New("operation not allowed in current call state")
	// ErrExchangeInProgress is returned when a message is sent while the reply
	// to a previous one is still streaming.
	ErrExchangeInProgress = errors.New("reply to previous message still in progress")
	ErrNotRecording       = errors.New("not recording")
	ErrEmptyRecording     = errors.New("recording captured no audio")

	errNoAudioOutput = errors.New("no audio output configured")
	errNoAudioInput  = errors.New("no audio input configured")
)

// DeviceError wraps a failure of an audio device.
type DeviceError struct {
	Op  string
	Err error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("audio device %s: %v", e.Op, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

func deviceError(op string, err error) error {
	if err == nil {
		return nil
	}
	var deviceErr *DeviceError
	if errors.As(err, &deviceErr) {
		return err
	}
	return &DeviceError{Op: op, Err: err}
}
