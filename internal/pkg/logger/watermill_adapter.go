package logger

import (
	"github.com/ThreeDotsLabs/watermill"
)

// WatermillAdapter routes watermill's internal logging into ILogger under the "Queue" module.
type WatermillAdapter struct {
	log    ILogger
	fields watermill.LogFields
}

func NewWatermillAdapter(log ILogger) *WatermillAdapter {
	return &WatermillAdapter{log: log, fields: watermill.LogFields{}}
}

func (a *WatermillAdapter) details(fields watermill.LogFields) map[string]interface{} {
	out := make(map[string]interface{}, len(a.fields)+len(fields))
	for k, v := range a.fields {
		out[k] = v
	}
	for k, v := range fields {
		out[k] = v
	}
	return out
}

func (a *WatermillAdapter) Error(msg string, err error, fields watermill.LogFields) {
	d := a.details(fields)
	d["error"] = err
	a.log.Error("Queue", msg, d)
}

func (a *WatermillAdapter) Info(msg string, fields watermill.LogFields) {
	a.log.Info("Queue", msg, a.details(fields))
}

// Debug and Trace are both mapped to debug; watermill's trace output is per message.
func (a *WatermillAdapter) Debug(msg string, fields watermill.LogFields) {
	a.log.Debug("Queue", msg, a.details(fields))
}

func (a *WatermillAdapter) Trace(msg string, fields watermill.LogFields) {
	a.log.Debug("Queue", msg, a.details(fields))
}

func (a *WatermillAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &WatermillAdapter{log: a.log, fields: a.fields.Add(fields)}
}
