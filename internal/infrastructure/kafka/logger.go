package kafka

import (
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

func debugLogger(l *zap.Logger) kafka.Logger {
	return kafka.LoggerFunc(func(msg string, args ...interface{}) { l.Debug(fmt.Sprintf(msg, args...)) })
}

func errorLogger(l *zap.Logger) kafka.Logger {
	return kafka.LoggerFunc(func(msg string, args ...interface{}) { l.Error(fmt.Sprintf(msg, args...)) })
}
