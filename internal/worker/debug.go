package worker

import (
	"os"
	"strings"

	"datachat/internal/logx"
)

var workerDebugEnabled = strings.EqualFold(os.Getenv("DATACHAT_WORKER_DEBUG"), "1")

func debugLog(format string, args ...interface{}) {
	if workerDebugEnabled {
		logx.Debug().Msgf(format, args...)
	}
}
