package model

import (
	"errors"
	"fmt"

	"github.com/ohler55/ojg/oj"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

type Encoding string

const (
	EncodingJSON  Encoding = "json"
	EncodingProto Encoding = "proto"
)

var ErrUnknownEncoding = errors.New("unknown encoding")

func ParseEncoding(s string) (Encoding, error) {
	switch Encoding(s) {
	case EncodingJSON, EncodingProto:
		return Encoding(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownEncoding, s)
	}
}

// Marshal encodes f. JSON output has sorted keys; proto output is a
// google.protobuf.Struct.
func Marshal(enc Encoding, f Fields) ([]byte, error) {
	switch enc {
	case EncodingJSON:
		return []byte(oj.JSON(map[string]any(f), &oj.Options{Sort: true})), nil
	case EncodingProto:
		s, err := structpb.NewStruct(map[string]any(f))
		if err != nil {
			return nil, fmt.Errorf("error converting fields: %w", err)
		}
		return proto.Marshal(s)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEncoding, enc)
	}
}

// Unmarshal is the counterpart of Marshal. Numbers are returned as int64 or
// float64 (json) resp. float64 (proto).
func Unmarshal(enc Encoding, data []byte) (Fields, error) {
	switch enc {
	case EncodingJSON:
		v, err := oj.Parse(data)
		if err != nil {
			return nil, fmt.Errorf("error parsing json: %w", err)
		}
		m, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("expected json object, got %T", v)
		}
		return Fields(m), nil
	case EncodingProto:
		s := &structpb.Struct{}
		if err := proto.Unmarshal(data, s); err != nil {
			return nil, fmt.Errorf("error unmarshalling struct: %w", err)
		}
		return Fields(s.AsMap()), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEncoding, enc)
	}
}
