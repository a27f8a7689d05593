// Package codec converts structured values to and from the raw string payload
// stored by the directory cache. The cache itself only ever sees strings.
package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	// ErrInvalidValue 表示值无法以当前编码存储，例如向 Raw 传入非字符串。
	ErrInvalidValue = errors.New("value is not representable by codec")
	// ErrUnknownCodec 表示配置了未注册的编码名称。
	ErrUnknownCodec = errors.New("unknown codec")
)

// Codec 负责值与存储字符串之间的互转。
type Codec interface {
	Name() string
	Encode(v any) (string, error)
	Decode(data string, v any) error
}

type jsonCodec struct{}

// JSON 以两个空格缩进输出，便于直接查看缓存文件。
var JSON Codec = jsonCodec{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Encode(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("json encode: %w", err)
	}
	return string(data), nil
}

func (jsonCodec) Decode(data string, v any) error {
	if err := json.Unmarshal([]byte(data), v); err != nil {
		return fmt.Errorf("json decode: %w", err)
	}
	return nil
}

type yamlCodec struct{}

// YAML 使用 gopkg.in/yaml.v3。
var YAML Codec = yamlCodec{}

func (yamlCodec) Name() string { return "yaml" }

func (yamlCodec) Encode(v any) (string, error) {
	data, err := yaml.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("yaml encode: %w", err)
	}
	return string(data), nil
}

func (yamlCodec) Decode(data string, v any) error {
	if err := yaml.Unmarshal([]byte(data), v); err != nil {
		return fmt.Errorf("yaml decode: %w", err)
	}
	return nil
}

type rawCodec struct{}

// Raw 只接受字符串，原样存取；其它类型返回 ErrInvalidValue。
var Raw Codec = rawCodec{}

func (rawCodec) Name() string { return "raw" }

func (rawCodec) Encode(v any) (string, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case *string:
		if s == nil {
			return "", nil
		}
		return *s, nil
	default:
		return "", fmt.Errorf("%w: raw codec got %T", ErrInvalidValue, v)
	}
}

func (rawCodec) Decode(data string, v any) error {
	switch dst := v.(type) {
	case *string:
		*dst = data
		return nil
	case *any:
		*dst = data
		return nil
	default:
		return fmt.Errorf("%w: raw codec cannot decode into %T", ErrInvalidValue, v)
	}
}

// Lookup 按名称返回内置 Codec，空名称等价于 raw。
func Lookup(name string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "raw":
		return Raw, nil
	case "json":
		return JSON, nil
	case "yaml", "yml":
		return YAML, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownCodec, name)
	}
}
