package logging

import (
	"encoding/json"
	"time"

	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

var bufferPool = buffer.NewPool()

// ScalyrEncoder writes one flat JSON object per entry in the layout Scalyr parses
type ScalyrEncoder struct {
	zapcore.Encoder
	config zapcore.EncoderConfig
	// fields added through With() on a derived logger
	context *zapcore.MapObjectEncoder
}

// NewScalyrEncoder creates a new Scalyr-compatible encoder
func NewScalyrEncoder(config zapcore.EncoderConfig) zapcore.Encoder {
	return &ScalyrEncoder{
		Encoder: zapcore.NewJSONEncoder(config),
		config:  config,
		context: zapcore.NewMapObjectEncoder(),
	}
}

// EncodeEntry encodes a log entry in Scalyr-compatible format
func (e *ScalyrEncoder) EncodeEntry(entry zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	record := make(map[string]interface{}, len(e.context.Fields)+len(fields)+6)
	for k, v := range e.context.Fields {
		record[k] = v
	}

	enc := zapcore.NewMapObjectEncoder()
	for _, field := range fields {
		field.AddTo(enc)
	}
	for k, v := range enc.Fields {
		switch val := v.(type) {
		case time.Duration:
			record[k] = val.String()
		case time.Time:
			record[k] = val.Format(time.RFC3339Nano)
		default:
			record[k] = val
		}
	}

	// Entry metadata wins over user fields of the same name
	record["timestamp"] = entry.Time.Format(time.RFC3339Nano)
	record["level"] = entry.Level.String()
	record["message"] = entry.Message
	if entry.LoggerName != "" {
		record["logger"] = entry.LoggerName
	}
	if entry.Caller.Defined {
		record["file"] = entry.Caller.File
		record["line"] = entry.Caller.Line
		record["function"] = entry.Caller.Function
	}
	if entry.Stack != "" {
		record["stack"] = entry.Stack
	}

	data, err := json.Marshal(record)
	if err != nil {
		return nil, err
	}

	buf := bufferPool.Get()
	buf.AppendBytes(data)
	buf.AppendString(e.lineEnding())
	return buf, nil
}

func (e *ScalyrEncoder) lineEnding() string {
	if e.config.LineEnding != "" {
		return e.config.LineEnding
	}
	return zapcore.DefaultLineEnding
}

// AddString and friends capture With() fields for derived loggers
func (e *ScalyrEncoder) AddString(key, value string) { e.context.AddString(key, value) }

func (e *ScalyrEncoder) AddInt64(key string, value int64) { e.context.AddInt64(key, value) }

func (e *ScalyrEncoder) AddBool(key string, value bool) { e.context.AddBool(key, value) }

// Clone creates a copy of the encoder
func (e *ScalyrEncoder) Clone() zapcore.Encoder {
	context := zapcore.NewMapObjectEncoder()
	for k, v := range e.context.Fields {
		context.Fields[k] = v
	}
	return &ScalyrEncoder{
		Encoder: e.Encoder.Clone(),
		config:  e.config,
		context: context,
	}
}
