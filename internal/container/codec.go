// Package container implements the sealed archive file format:
//
//	MAGIC[8] | header length (u32, big endian) | header JSON | nonce[12] | ciphertext+tag
//
// The header JSON bytes, exactly as stored, are the associated data of the
// AES-256-GCM seal, so any change to them invalidates the archive.
package container

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/dmitrijs2005/sealback/internal/common"
	"github.com/dmitrijs2005/sealback/internal/compress"
	"github.com/dmitrijs2005/sealback/internal/cryptox"
)

// Magic identifies a sealed archive.
var Magic = []byte("SEALBACK")

const (
	lengthSize = 4

	// MaxHeaderSize bounds the declared header length.
	MaxHeaderSize = 64 << 10
)

// Encode seals payload under a key derived from password and returns the
// complete container bytes. A fresh salt and nonce are generated per call.
func Encode(payload, password []byte, params cryptox.KDFParams, compression string) ([]byte, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if compression != compress.Name {
		return nil, fmt.Errorf("%w: unsupported compression %q", common.ErrConfiguration, compression)
	}

	salt, err := cryptox.GenerateSalt(cryptox.SaltSize)
	if err != nil {
		return nil, err
	}

	header := NewHeader(params, salt, compression)
	headerBytes, err := header.Marshal()
	if err != nil {
		return nil, err
	}
	if len(headerBytes) > MaxHeaderSize {
		return nil, fmt.Errorf("%w: header is %d bytes, limit is %d", common.ErrConfiguration, len(headerBytes), MaxHeaderSize)
	}

	key, err := cryptox.DeriveKey(password, salt, params)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(key)

	nonce, err := cryptox.GenerateNonce()
	if err != nil {
		return nil, err
	}

	ciphertext, err := cryptox.Seal(key, nonce, payload, headerBytes)
	if err != nil {
		return nil, fmt.Errorf("seal payload: %w", err)
	}

	var buf bytes.Buffer
	buf.Grow(len(Magic) + lengthSize + len(headerBytes) + len(nonce) + len(ciphertext))
	buf.Write(Magic)
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(headerBytes)))
	buf.Write(headerBytes)
	buf.Write(nonce)
	buf.Write(ciphertext)
	return buf.Bytes(), nil
}

// ParseHeader reads the framing and header of a container without
// decrypting it. It returns the parsed header and its raw bytes.
func ParseHeader(data []byte) (Header, []byte, error) {
	header, headerBytes, _, err := split(data)
	return header, headerBytes, err
}

// split returns the parsed header, the raw header bytes and the body
// (nonce followed by ciphertext).
func split(data []byte) (Header, []byte, []byte, error) {
	if len(data) < len(Magic) || !bytes.Equal(data[:len(Magic)], Magic) {
		return Header{}, nil, nil, fmt.Errorf("%w: not a sealed archive (bad magic)", common.ErrFormat)
	}
	rest := data[len(Magic):]

	if len(rest) < lengthSize {
		return Header{}, nil, nil, fmt.Errorf("%w: truncated header length", common.ErrFormat)
	}
	headerLen := binary.BigEndian.Uint32(rest[:lengthSize])
	rest = rest[lengthSize:]

	if headerLen == 0 || headerLen > MaxHeaderSize {
		return Header{}, nil, nil, fmt.Errorf("%w: invalid header length %d", common.ErrFormat, headerLen)
	}
	if uint64(headerLen) > uint64(len(rest)) {
		return Header{}, nil, nil, fmt.Errorf("%w: truncated header (want %d bytes, have %d)", common.ErrFormat, headerLen, len(rest))
	}
	headerBytes := rest[:headerLen]
	rest = rest[headerLen:]

	header, err := unmarshalHeader(headerBytes)
	if err != nil {
		return Header{}, nil, nil, err
	}
	return header, headerBytes, rest, nil
}

// Decode verifies and decrypts a container produced by Encode.
//
// Framing and header problems are reported as common.ErrFormat. Once the
// header is accepted, every verification failure, whether caused by a wrong
// password or by modified bytes, is reported as common.ErrAuthentication
// with no further detail.
func Decode(data, password []byte) ([]byte, error) {
	header, headerBytes, body, err := split(data)
	if err != nil {
		return nil, err
	}

	params := header.Params()
	if err := params.Validate(); err != nil {
		return nil, err
	}
	salt, err := header.Salt()
	if err != nil {
		return nil, err
	}

	if len(body) < cryptox.NonceSize+cryptox.TagSize {
		return nil, fmt.Errorf("%w: truncated payload", common.ErrFormat)
	}
	nonce := body[:cryptox.NonceSize]
	ciphertext := body[cryptox.NonceSize:]

	key, err := cryptox.DeriveKey(password, salt, params)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(key)

	plaintext, err := cryptox.Open(key, nonce, ciphertext, headerBytes)
	if err != nil {
		return nil, common.ErrAuthentication
	}
	return plaintext, nil
}
