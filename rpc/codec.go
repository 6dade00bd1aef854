package rpc

import (
	jsoniter "github.com/json-iterator/go"
	"google.golang.org/grpc/encoding"
)

// CodecName is the gRPC content-subtype of every Connector call.
const CodecName = "json"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return CodecName
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
