// Package jsoncodec routes every JSON encode and decode in logpipe through
// sonic, configured to produce the same bytes as encoding/json.
package jsoncodec

import "github.com/bytedance/sonic"

var (
	std = sonic.ConfigStd

	// strict refuses fields the target type does not declare, so a
	// mislabelled record fails to decode instead of losing content.
	strict = sonic.Config{
		DisallowUnknownFields: true,
		CopyString:            true,
		ValidateString:        true,
		EscapeHTML:            true,
		SortMapKeys:           true,
		CompactMarshaler:      true,
	}.Froze()
)

func Marshal(v any) ([]byte, error) { return std.Marshal(v) }

func MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return std.MarshalIndent(v, prefix, indent)
}

func Unmarshal(data []byte, v any) error { return std.Unmarshal(data, v) }

// UnmarshalStrict decodes data into v and fails on unknown fields.
func UnmarshalStrict(data []byte, v any) error { return strict.Unmarshal(data, v) }
