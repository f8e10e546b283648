package config

import "go.uber.org/zap"

var logger *zap.Logger

func init() {
	logger, _ = zap.NewProduction()
}

func GetLogger() *zap.Logger {
	return logger
}

// SetDebugLogging swaps the process logger between production and
// development encoders. The database section flips this from its
// debug flag on reload.
func SetDebugLogging(debug bool) {
	build := zap.NewProduction
	if debug {
		build = zap.NewDevelopment
	}
	if l, err := build(); err == nil {
		logger = l
	}
}
