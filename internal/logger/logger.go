package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the application logger. Production uses JSON output; anything else the
// development console encoder.
func New(appEnv, serviceName string) (*zap.Logger, error) {
	var (
		log *zap.Logger
		err error
	)

	if appEnv == "production" {
		cfg := zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.EncoderConfig.LevelKey = "severity"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		cfg.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
		cfg.OutputPaths = []string{"stdout"}
		cfg.ErrorOutputPaths = []string{"stderr"}
		log, err = cfg.Build()
	} else {
		log, err = zap.NewDevelopment()
	}
	if err != nil {
		return nil, err
	}

	log = log.With(
		zap.String("env", appEnv),
		zap.String("service_name", serviceName),
	)
	zap.ReplaceGlobals(log)
	return log, nil
}

// MaskKey masks a license key for logging (e.g. ABCD-****-****-WXYZ)
func MaskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	masked := []byte(key)
	for i := 4; i < len(masked)-4; i++ {
		if masked[i] != '-' {
			masked[i] = '*'
		}
	}
	return string(masked)
}
