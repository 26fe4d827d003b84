package records

import (
	"fmt"
	"time"

	"github.com/valyala/fastjson"

	"github.com/drblury/logpipe/internal/runtime/jsoncodec"
)

// Wire envelopes prepend the level discriminator to the flat variant fields.
type (
	infoWire struct {
		Level Level `json:"level"`
		Info
	}
	warningWire struct {
		Level Level `json:"level"`
		Warning
	}
	exceptionWire struct {
		Level Level `json:"level"`
		Exception
	}
	failedWire struct {
		Level Level `json:"level"`
		Failed
	}
)

var peekPool fastjson.ParserPool

// Encode writes r as a flat JSON document carrying level, id and createdAt
// alongside the variant fields.
func Encode(r Record) ([]byte, error) {
	var wire any
	switch rec := r.(type) {
	case Info:
		wire = infoWire{Level: LevelInfo, Info: rec}
	case Warning:
		wire = warningWire{Level: LevelWarning, Warning: rec}
	case Exception:
		wire = exceptionWire{Level: LevelException, Exception: rec}
	case Failed:
		wire = failedWire{Level: LevelFailed, Failed: rec}
	case Fallback:
		wire = failedWire{Level: LevelFailed, Failed: rec.failed}
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupported, r)
	}
	return jsoncodec.Marshal(wire)
}

// PeekLevel reads only the level discriminator of payload.
func PeekLevel(payload []byte) (Level, error) {
	p := peekPool.Get()
	defer peekPool.Put(p)

	v, err := p.ParseBytes(payload)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if v.Type() != fastjson.TypeObject {
		return "", fmt.Errorf("%w: top level is %s", ErrMalformed, v.Type())
	}
	field := v.Get("level")
	if field == nil || field.Type() == fastjson.TypeNull {
		return "", ErrMissingLevel
	}
	raw, err := field.StringBytes()
	if err != nil {
		return "", fmt.Errorf("%w: level is %s", ErrUnknownLevel, field.Type())
	}
	lvl := Level(raw)
	if !lvl.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownLevel, raw)
	}
	return lvl, nil
}

// Decode peeks the discriminator and strictly decodes payload into the
// matching variant. Fields that the variant does not declare are rejected.
func Decode(payload []byte) (Record, error) {
	lvl, err := PeekLevel(payload)
	if err != nil {
		return nil, err
	}
	switch lvl {
	case LevelInfo:
		var w infoWire
		if err := jsoncodec.UnmarshalStrict(payload, &w); err != nil {
			return nil, decodeError(lvl, err)
		}
		return w.Info, nil
	case LevelWarning:
		var w warningWire
		if err := jsoncodec.UnmarshalStrict(payload, &w); err != nil {
			return nil, decodeError(lvl, err)
		}
		return w.Warning, nil
	case LevelException:
		var w exceptionWire
		if err := jsoncodec.UnmarshalStrict(payload, &w); err != nil {
			return nil, decodeError(lvl, err)
		}
		return w.Exception, nil
	default:
		var w failedWire
		if err := jsoncodec.UnmarshalStrict(payload, &w); err != nil {
			return nil, decodeError(lvl, err)
		}
		return w.Failed, nil
	}
}

// DecodeError reports a payload whose shape does not match its level.
type DecodeError struct {
	Level Level
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("records: payload does not match %s shape: %v", e.Level, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func decodeError(lvl Level, err error) error {
	return &DecodeError{Level: lvl, Err: err}
}

// WithCreatedAt returns a copy of r with its creation time replaced.
func WithCreatedAt(r Record, at time.Time) Record {
	switch rec := r.(type) {
	case Info:
		rec.CreatedAt = at
		return rec
	case Warning:
		rec.CreatedAt = at
		return rec
	case Exception:
		rec.CreatedAt = at
		return rec
	case Failed:
		rec.CreatedAt = at
		return rec
	case Fallback:
		rec.failed.CreatedAt = at
		return rec
	}
	return r
}
