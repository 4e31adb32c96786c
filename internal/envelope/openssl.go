package envelope

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	opensslMagic = "Salted__"
	passEnv      = "OROIO_STORE_PASS"
)

// OpenSSLCodec implements Codec by running the openssl command line tool.
// The passphrase is handed over through the environment, never argv.
type OpenSSLCodec struct {
	params Params
	binary string
}

// NewOpenSSLCodec returns an OpenSSLCodec running binary (empty means
// "openssl" from PATH). openssl always writes the "Salted__" header, so p
// must use that magic.
func NewOpenSSLCodec(p Params, binary string) (*OpenSSLCodec, error) {
	if p.Magic != opensslMagic {
		return nil, fmt.Errorf("openssl codec requires magic %q, got %q", opensslMagic, p.Magic)
	}
	if binary == "" {
		binary = "openssl"
	}
	return &OpenSSLCodec{params: p, binary: binary}, nil
}

func (c *OpenSSLCodec) args(decrypt bool) []string {
	args := []string{"enc"}
	if decrypt {
		args = append(args, "-d")
	}
	return append(args,
		"-aes-256-cbc", "-pbkdf2",
		"-iter", strconv.Itoa(c.params.Iterations),
		"-md", "sha256",
		"-pass", "env:"+passEnv,
	)
}

func (c *OpenSSLCodec) run(ctx context.Context, decrypt bool, in []byte) ([]byte, error) {
	cmd := exec.CommandContext(ctx, c.binary, c.args(decrypt)...)
	cmd.Env = append(os.Environ(), passEnv+"="+c.params.Passphrase)
	cmd.Stdin = bytes.NewReader(in)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err == nil {
		return stdout.Bytes(), nil
	}
	var exitErr *exec.ExitError
	if decrypt && errors.As(err, &exitErr) {
		return nil, fmt.Errorf("%w: %s", ErrCrypto, strings.TrimSpace(stderr.String()))
	}
	return nil, fmt.Errorf("run %s: %w", c.binary, err)
}

// Encode pipes the plaintext through "openssl enc".
func (c *OpenSSLCodec) Encode(ctx context.Context, keys []string) ([]byte, error) {
	out, err := c.run(ctx, false, MarshalPlaintext(keys))
	if err != nil {
		return nil, err
	}
	if _, _, err := splitEnvelope(c.params, out); err != nil {
		return nil, fmt.Errorf("unexpected openssl output: %w", err)
	}
	return out, nil
}

// Decode pipes blob through "openssl enc -d".
func (c *OpenSSLCodec) Decode(ctx context.Context, blob []byte) ([]string, error) {
	if _, _, err := splitEnvelope(c.params, blob); err != nil {
		return nil, err
	}
	text, err := c.run(ctx, true, blob)
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(text) {
		return nil, fmt.Errorf("%w: plaintext is not UTF-8", ErrCrypto)
	}
	return UnmarshalPlaintext(text), nil
}
