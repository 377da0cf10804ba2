// Package cryptox implements password hashing for the credential store.
//
// Hashes are Argon2id digests encoded in the PHC string format:
//
//	$argon2id$v=19$m=65536,t=1,p=4$<salt>$<digest>
//
// Salt and digest use standard base64 without padding. Every parameter needed
// to re-derive the digest is stored in the string, so a Hasher can verify
// hashes produced under a different configuration.
package cryptox

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/safebox/internal/common"
	"golang.org/x/crypto/argon2"
)

const (
	algorithm = "argon2id"

	// MinSaltLen is the smallest salt Hash accepts.
	MinSaltLen = 16

	// Upper bounds for both new and stored parameters. A stored hash above
	// them is rejected before any memory is allocated for it.
	MaxMemory uint32 = 1 << 20 // KiB, 1 GiB
	MaxTime   uint32 = 64
	MaxKeyLen uint32 = 1024

	DefaultMemory  uint32 = 64 * 1024
	DefaultTime    uint32 = 1
	DefaultThreads uint8  = 4
	DefaultKeyLen  uint32 = 32
	DefaultSaltLen uint32 = 64
)

// Params are the Argon2id cost factors used for new hashes.
type Params struct {
	Memory  uint32 // KiB
	Time    uint32
	Threads uint8
	KeyLen  uint32
	SaltLen uint32
}

// DefaultParams returns the parameters used when nothing is configured.
func DefaultParams() Params {
	return Params{
		Memory:  DefaultMemory,
		Time:    DefaultTime,
		Threads: DefaultThreads,
		KeyLen:  DefaultKeyLen,
		SaltLen: DefaultSaltLen,
	}
}

// Validate reports whether p can be handed to argon2.IDKey.
func (p Params) Validate() error {
	switch {
	case p.Time < 1:
		return fmt.Errorf("argon2 time must be >= 1, got %d", p.Time)
	case p.Threads < 1:
		return fmt.Errorf("argon2 threads must be >= 1, got %d", p.Threads)
	case p.Memory < 8*uint32(p.Threads):
		return fmt.Errorf("argon2 memory must be >= 8*threads KiB, got %d", p.Memory)
	case p.Time > MaxTime:
		return fmt.Errorf("argon2 time must be <= %d, got %d", MaxTime, p.Time)
	case p.Memory > MaxMemory:
		return fmt.Errorf("argon2 memory must be <= %d KiB, got %d", MaxMemory, p.Memory)
	case p.KeyLen < 16:
		return fmt.Errorf("argon2 key length must be >= 16, got %d", p.KeyLen)
	case p.KeyLen > MaxKeyLen:
		return fmt.Errorf("argon2 key length must be <= %d, got %d", MaxKeyLen, p.KeyLen)
	case p.SaltLen < MinSaltLen:
		return fmt.Errorf("salt length must be >= %d, got %d", MinSaltLen, p.SaltLen)
	}
	return nil
}

// Hasher produces and checks PHC-encoded Argon2id hashes. It holds no
// mutable state and is safe for concurrent use.
type Hasher struct {
	params Params
	rand   io.Reader
}

// NewHasher returns a Hasher for params, or an error if they are unusable.
func NewHasher(params Params) (*Hasher, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Hasher{params: params, rand: rand.Reader}, nil
}

// NewHasherWithRand is NewHasher with r as the salt source instead of
// crypto/rand.
func NewHasherWithRand(params Params, r io.Reader) (*Hasher, error) {
	h, err := NewHasher(params)
	if err != nil {
		return nil, err
	}
	h.rand = r
	return h, nil
}

// Params returns the parameters used for new hashes.
func (h *Hasher) Params() Params { return h.params }

// NewSalt reads SaltLen fresh bytes from the salt source.
func (h *Hasher) NewSalt() ([]byte, error) {
	salt := make([]byte, h.params.SaltLen)
	if _, err := io.ReadFull(h.rand, salt); err != nil {
		return nil, fmt.Errorf("%w: reading salt: %v", common.ErrCrypto, err)
	}
	return salt, nil
}

// Hash derives the Argon2id digest of password with salt and returns the
// encoded string. The caller supplies a fresh salt for every call.
func (h *Hasher) Hash(password, salt []byte) (string, error) {
	if len(salt) < MinSaltLen {
		return "", fmt.Errorf("%w: salt shorter than %d bytes", common.ErrCrypto, MinSaltLen)
	}
	p := h.params
	key := argon2.IDKey(password, salt, p.Time, p.Memory, p.Threads, p.KeyLen)
	return encode(p, salt, key), nil
}

// HashPassword hashes password with a newly generated salt.
func (h *Hasher) HashPassword(password []byte) (string, error) {
	salt, err := h.NewSalt()
	if err != nil {
		return "", err
	}
	return h.Hash(password, salt)
}

// Verify reports whether password matches encoded. A mismatch is (false, nil);
// an unparsable string is an error wrapping common.ErrCrypto.
func (h *Hasher) Verify(encoded string, password []byte) (bool, error) {
	d, err := decode(encoded)
	if err != nil {
		return false, err
	}
	key := argon2.IDKey(password, d.salt, d.params.Time, d.params.Memory, d.params.Threads, d.params.KeyLen)
	return subtle.ConstantTimeCompare(key, d.key) == 1, nil
}

// NeedsRehash reports whether encoded was produced with parameters other than
// the current ones.
func (h *Hasher) NeedsRehash(encoded string) (bool, error) {
	d, err := decode(encoded)
	if err != nil {
		return false, err
	}
	return d.params.Memory != h.params.Memory ||
		d.params.Time != h.params.Time ||
		d.params.Threads != h.params.Threads ||
		d.params.KeyLen != h.params.KeyLen ||
		uint32(len(d.salt)) != h.params.SaltLen, nil
}

type decoded struct {
	params Params
	salt   []byte
	key    []byte
}

func encode(p Params, salt, key []byte) string {
	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithm, argon2.Version,
		p.Memory, p.Time, p.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	)
}

func decode(encoded string) (*decoded, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		return nil, malformed("expected 5 segments")
	}
	if parts[1] != algorithm {
		return nil, malformed("unsupported algorithm %q", parts[1])
	}

	version, err := strconv.Atoi(strings.TrimPrefix(parts[2], "v="))
	if err != nil || !strings.HasPrefix(parts[2], "v=") {
		return nil, malformed("bad version segment %q", parts[2])
	}
	if version != argon2.Version {
		return nil, malformed("unsupported version %d", version)
	}

	var p Params
	seen := 0
	for _, kv := range strings.Split(parts[3], ",") {
		name, value, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, malformed("bad parameter %q", kv)
		}
		n, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return nil, malformed("bad parameter %q", kv)
		}
		switch name {
		case "m":
			p.Memory = uint32(n)
		case "t":
			p.Time = uint32(n)
		case "p":
			if n > 255 {
				return nil, malformed("parallelism out of range")
			}
			p.Threads = uint8(n)
		default:
			return nil, malformed("unknown parameter %q", name)
		}
		seen++
	}
	if seen != 3 {
		return nil, malformed("expected m, t and p parameters")
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) == 0 {
		return nil, malformed("bad salt")
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return nil, malformed("bad digest")
	}
	p.KeyLen = uint32(len(key))
	p.SaltLen = uint32(len(salt))

	if p.Time < 1 || p.Threads < 1 || p.Memory < 8*uint32(p.Threads) {
		return nil, malformed("parameters out of range")
	}
	if p.Memory > MaxMemory || p.Time > MaxTime || p.KeyLen > MaxKeyLen {
		return nil, malformed("parameters above limits")
	}

	return &decoded{params: p, salt: salt, key: key}, nil
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: malformed hash: %s", common.ErrCrypto, fmt.Sprintf(format, args...))
}
