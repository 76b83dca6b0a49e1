package proxy

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

const scopeName = "github.com/koscakluka/delphi-call/internal/proxy"

var logger = otelslog.NewLogger(scopeName)
