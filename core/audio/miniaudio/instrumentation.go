package miniaudio

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

const scopeName = "github.com/koscakluka/delphi-call/core/audio/miniaudio"

var logger = otelslog.NewLogger(scopeName)
