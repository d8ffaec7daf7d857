package eventbus

import (
	"github.com/ThreeDotsLabs/watermill"
	"go.uber.org/zap"
)

// zapAdapter satisfies watermill.LoggerAdapter by forwarding to the
// application's zap logger, so bus-internal logs (publish/subscribe
// lifecycle, redelivery) land in the same structured stream as every
// other component instead of watermill's default stdlib logger.
type zapAdapter struct {
	log *zap.Logger
}

func NewZapAdapter(log *zap.Logger) watermill.LoggerAdapter {
	return &zapAdapter{log: log}
}

func (a *zapAdapter) fields(f watermill.LogFields) []zap.Field {
	zf := make([]zap.Field, 0, len(f))
	for k, v := range f {
		zf = append(zf, zap.Any(k, v))
	}
	return zf
}

func (a *zapAdapter) Error(msg string, err error, fields watermill.LogFields) {
	a.log.Error(msg, append(a.fields(fields), zap.Error(err))...)
}

func (a *zapAdapter) Info(msg string, fields watermill.LogFields) {
	a.log.Info(msg, a.fields(fields)...)
}

func (a *zapAdapter) Debug(msg string, fields watermill.LogFields) {
	a.log.Debug(msg, a.fields(fields)...)
}

func (a *zapAdapter) Trace(msg string, fields watermill.LogFields) {
	a.log.Debug(msg, a.fields(fields)...)
}

func (a *zapAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &zapAdapter{log: a.log.With(a.fields(fields)...)}
}
