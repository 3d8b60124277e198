package fetchz

import (
	"encoding/json"

	"gopkg.in/yaml.v3"
)

// Codec defines how payloads are encoded for requests and decoded from
// responses. Implement this interface to use alternative formats.
type Codec interface {
	// Marshal serializes v into bytes.
	Marshal(v any) ([]byte, error)

	// Unmarshal deserializes bytes into a value.
	Unmarshal(data []byte, v any) error

	// ContentType returns the MIME type, used for Accept and Content-Type
	// headers by transports that speak HTTP.
	ContentType() string
}

// Validator is implemented by payload types that can check themselves after
// decoding. A validation failure is reported as a decode error.
type Validator interface {
	Validate() error
}

// JSONCodec implements Codec using encoding/json.
type JSONCodec struct{}

// Marshal serializes v as JSON.
func (JSONCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Unmarshal deserializes JSON bytes into v.
func (JSONCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// ContentType returns the JSON MIME type.
func (JSONCodec) ContentType() string {
	return "application/json"
}

// Ensure JSONCodec implements Codec.
var _ Codec = JSONCodec{}

// YAMLCodec implements Codec using gopkg.in/yaml.v3.
type YAMLCodec struct{}

// Marshal serializes v as YAML.
func (YAMLCodec) Marshal(v any) ([]byte, error) {
	return yaml.Marshal(v)
}

// Unmarshal deserializes YAML bytes into v.
func (YAMLCodec) Unmarshal(data []byte, v any) error {
	return yaml.Unmarshal(data, v)
}

// ContentType returns the YAML MIME type.
func (YAMLCodec) ContentType() string {
	return "application/x-yaml"
}

// Ensure YAMLCodec implements Codec.
var _ Codec = YAMLCodec{}

// decode unmarshals data into a T and validates it when T supports it.
func decode[T any](codec Codec, data []byte) (T, error) {
	var out T
	if err := codec.Unmarshal(data, &out); err != nil {
		return out, DecodeError(err)
	}
	if v, ok := any(out).(Validator); ok {
		if err := v.Validate(); err != nil {
			return out, DecodeError(err)
		}
	} else if v, ok := any(&out).(Validator); ok {
		if err := v.Validate(); err != nil {
			return out, DecodeError(err)
		}
	}
	return out, nil
}
