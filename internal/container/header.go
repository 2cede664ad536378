package container

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/sealback/internal/common"
	"github.com/dmitrijs2005/sealback/internal/compress"
	"github.com/dmitrijs2005/sealback/internal/cryptox"
)

const (
	FormatVersion   = 1
	CipherAES256GCM = "aes-256-gcm"
	KDFScrypt       = "scrypt"
)

// KDFParams is the header form of the scrypt parameters, including the
// per-archive salt.
type KDFParams struct {
	N    int    `json:"n"`
	R    int    `json:"r"`
	P    int    `json:"p"`
	Salt string `json:"salt"`
}

// Header is the authenticated, unencrypted metadata stored in front of the
// ciphertext. Field order here is the serialization order.
type Header struct {
	FormatVersion int       `json:"format_version"`
	Cipher        string    `json:"cipher"`
	KDF           string    `json:"kdf"`
	KDFParams     KDFParams `json:"kdf_params"`
	Compression   string    `json:"compression"`
}

// NewHeader builds a header for a new archive.
func NewHeader(params cryptox.KDFParams, salt []byte, compression string) Header {
	return Header{
		FormatVersion: FormatVersion,
		Cipher:        CipherAES256GCM,
		KDF:           KDFScrypt,
		KDFParams: KDFParams{
			N:    params.N,
			R:    params.R,
			P:    params.P,
			Salt: base64.StdEncoding.EncodeToString(salt),
		},
		Compression: compression,
	}
}

// Marshal returns the canonical header bytes: compact, no HTML escaping and
// no trailing newline. These bytes are the AEAD associated data.
func (h Header) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(h); err != nil {
		return nil, fmt.Errorf("encode header: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// Params returns the scrypt cost factors carried by the header.
func (h Header) Params() cryptox.KDFParams {
	return cryptox.KDFParams{N: h.KDFParams.N, R: h.KDFParams.R, P: h.KDFParams.P}
}

// Salt decodes the embedded salt.
func (h Header) Salt() ([]byte, error) {
	salt, err := base64.StdEncoding.DecodeString(h.KDFParams.Salt)
	if err != nil {
		return nil, fmt.Errorf("%w: header salt is not valid base64: %w", common.ErrFormat, err)
	}
	if len(salt) < cryptox.MinSaltSize || len(salt) > cryptox.MaxSaltSize {
		return nil, fmt.Errorf("%w: header salt has invalid length %d", common.ErrFormat, len(salt))
	}
	return salt, nil
}

// wireHeader mirrors Header with pointers so missing fields can be told apart
// from zero values.
type wireHeader struct {
	FormatVersion *int    `json:"format_version"`
	Cipher        *string `json:"cipher"`
	KDF           *string `json:"kdf"`
	KDFParams     *struct {
		N    *int    `json:"n"`
		R    *int    `json:"r"`
		P    *int    `json:"p"`
		Salt *string `json:"salt"`
	} `json:"kdf_params"`
	Compression *string `json:"compression"`
}

func unmarshalHeader(data []byte) (Header, error) {
	var w wireHeader
	if err := json.Unmarshal(data, &w); err != nil {
		return Header{}, fmt.Errorf("%w: malformed header: %w", common.ErrFormat, err)
	}

	switch {
	case w.FormatVersion == nil:
		return Header{}, missing("format_version")
	case w.Cipher == nil:
		return Header{}, missing("cipher")
	case w.KDF == nil:
		return Header{}, missing("kdf")
	case w.KDFParams == nil:
		return Header{}, missing("kdf_params")
	case w.KDFParams.N == nil:
		return Header{}, missing("kdf_params.n")
	case w.KDFParams.R == nil:
		return Header{}, missing("kdf_params.r")
	case w.KDFParams.P == nil:
		return Header{}, missing("kdf_params.p")
	case w.KDFParams.Salt == nil:
		return Header{}, missing("kdf_params.salt")
	case w.Compression == nil:
		return Header{}, missing("compression")
	}

	h := Header{
		FormatVersion: *w.FormatVersion,
		Cipher:        *w.Cipher,
		KDF:           *w.KDF,
		KDFParams: KDFParams{
			N:    *w.KDFParams.N,
			R:    *w.KDFParams.R,
			P:    *w.KDFParams.P,
			Salt: *w.KDFParams.Salt,
		},
		Compression: *w.Compression,
	}

	if h.FormatVersion != FormatVersion {
		return Header{}, fmt.Errorf("%w: unsupported container version %d", common.ErrFormat, h.FormatVersion)
	}
	if h.Cipher != CipherAES256GCM {
		return Header{}, fmt.Errorf("%w: unsupported cipher %q", common.ErrFormat, h.Cipher)
	}
	if h.KDF != KDFScrypt {
		return Header{}, fmt.Errorf("%w: unsupported kdf %q", common.ErrFormat, h.KDF)
	}
	if h.Compression != compress.Name {
		return Header{}, fmt.Errorf("%w: unsupported compression %q", common.ErrFormat, h.Compression)
	}
	return h, nil
}

func missing(field string) error {
	return fmt.Errorf("%w: header field %q is missing", common.ErrFormat, field)
}
