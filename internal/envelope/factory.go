package envelope

import "fmt"

// Codec kinds accepted by NewCodec.
const (
	KindNative  = "native"
	KindOpenSSL = "openssl"
)

// NewCodec builds the codec named by kind. opensslBinary is only used by
// the openssl codec.
func NewCodec(kind string, p Params, opensslBinary string) (Codec, error) {
	switch kind {
	case "", KindNative:
		return NewNativeCodec(p), nil
	case KindOpenSSL:
		return NewOpenSSLCodec(p, opensslBinary)
	default:
		return nil, fmt.Errorf("unknown codec %q", kind)
	}
}
