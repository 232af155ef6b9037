package utils

import (
	"fmt"
	"runtime/debug"

	"go.uber.org/zap"
)

func PanicRecovery(log *zap.Logger) {
	if r := recover(); r != nil {
		log.With(zap.String("stack", string(debug.Stack()))).Error("recovered panic")
	}
}

// PanicRecoveryReport recovers like PanicRecovery and also hands the panic to
// report as an error.
func PanicRecoveryReport(log *zap.Logger, report func(error)) {
	if r := recover(); r != nil {
		log.With(zap.String("stack", string(debug.Stack()))).Error("recovered panic")
		report(fmt.Errorf("panic: %v", r))
	}
}
