package tests

import (
	"os"

	"github.com/Layr-Labs/storage-locator/internal/config"
	"github.com/Layr-Labs/storage-locator/pkg/logger"
	"go.uber.org/zap"
)

func GetConfig() *config.Config {
	return config.NewConfig()
}

// GetTestLogger returns a logger honouring the DEBUG env var, so noisy test runs can be opted into.
func GetTestLogger() *zap.Logger {
	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: os.Getenv(config.Debug) == "true"})
	if err != nil {
		panic(err)
	}
	return l
}

func ReplaceEnv(newValues map[string]string, previousValues *map[string]string) {
	for k, v := range newValues {
		(*previousValues)[k] = os.Getenv(k)
		os.Setenv(k, v)
	}
}

func RestoreEnv(previousValues map[string]string) {
	for k, v := range previousValues {
		os.Setenv(k, v)
	}
}
