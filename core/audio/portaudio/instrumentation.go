package portaudio

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

const scopeName = "github.com/koscakluka/delphi-call/core/audio/portaudio"

var logger = otelslog.NewLogger(scopeName)
