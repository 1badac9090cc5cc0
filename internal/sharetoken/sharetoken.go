// Package sharetoken issues and verifies signed, time-limited capability
// tokens that grant access to a single video without a session.
//
// A token has three dot-separated sections, each unpadded URL-safe base64:
//
//	payload "." timestamp "." signature
//
// payload is the compact JSON object {"video_id":"<id>"}; the id is always a
// string on the wire. timestamp is the issuance time in unix seconds as a
// big-endian integer with leading zero bytes stripped. signature is
// HMAC-SHA256 over `payload "." timestamp` keyed with
// SHA-256(salt || "signer" || secret).
package sharetoken

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

const (
	// DefaultSalt scopes tokens to video sharing.
	DefaultSalt = "share_video"
	// DefaultMaxAge is how long a share token stays valid.
	DefaultMaxAge = 3600 * time.Second

	sep = "."
)

var (
	ErrBadSignature     = errors.New("bad signature")
	ErrSignatureExpired = errors.New("signature expired")
	ErrAccessDenied     = errors.New("access denied")
)

var b64 = base64.RawURLEncoding

// Payload is the signed content of a share token.
type Payload struct {
	VideoId  string    `json:"video_id"`
	IssuedAt time.Time `json:"-"`
}

type Codec struct {
	key []byte
	now func() time.Time
}

// New derives the signing key from secret and salt. An empty secret is
// rejected so a misconfigured process cannot mint forgeable tokens.
func New(secret []byte, salt string) (*Codec, error) {
	if len(secret) == 0 {
		return nil, errors.New("sharetoken: secret key is empty")
	}
	h := sha256.New()
	h.Write([]byte(salt))
	h.Write([]byte("signer"))
	h.Write(secret)
	return &Codec{key: h.Sum(nil), now: time.Now}, nil
}

// WithClock returns a copy of c reading the current time from now.
func (c *Codec) WithClock(now func() time.Time) *Codec {
	cp := *c
	cp.now = now
	return &cp
}

// Issue returns a token for videoId stamped with the current time.
func (c *Codec) Issue(videoId string) (string, error) {
	return c.IssueAt(videoId, c.now())
}

func (c *Codec) IssueAt(videoId string, at time.Time) (string, error) {
	raw, err := json.Marshal(Payload{VideoId: videoId})
	if err != nil {
		return "", err
	}
	value := b64.EncodeToString(raw) + sep + encodeTimestamp(at.Unix())
	return value + sep + c.sign(value), nil
}

// Verify checks token and returns its payload. Errors are ErrBadSignature,
// ErrSignatureExpired or ErrAccessDenied, in that order of precedence.
func (c *Codec) Verify(token, expectedVideoId string, maxAge time.Duration) (*Payload, error) {
	value, sig, ok := cutLast(token, sep)
	if !ok {
		return nil, ErrBadSignature
	}
	if !hmac.Equal([]byte(sig), []byte(c.sign(value))) {
		return nil, ErrBadSignature
	}

	rawPayload, rawTs, ok := cutLast(value, sep)
	if !ok || strings.Contains(rawPayload, sep) {
		return nil, ErrBadSignature
	}
	ts, err := decodeTimestamp(rawTs)
	if err != nil {
		return nil, ErrBadSignature
	}

	age := c.now().Unix() - ts
	if age < 0 || time.Duration(age)*time.Second > maxAge {
		return nil, ErrSignatureExpired
	}

	data, err := b64.DecodeString(rawPayload)
	if err != nil {
		return nil, ErrBadSignature
	}
	var p Payload
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&p); err != nil {
		return nil, ErrBadSignature
	}
	p.IssuedAt = time.Unix(ts, 0)

	if p.VideoId != expectedVideoId {
		return nil, ErrAccessDenied
	}
	return &p, nil
}

func (c *Codec) sign(value string) string {
	mac := hmac.New(sha256.New, c.key)
	mac.Write([]byte(value))
	return b64.EncodeToString(mac.Sum(nil))
}

func encodeTimestamp(ts int64) string {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(ts))
	return b64.EncodeToString(bytes.TrimLeft(buf[:], "\x00"))
}

func decodeTimestamp(s string) (int64, error) {
	raw, err := b64.DecodeString(s)
	if err != nil {
		return 0, err
	}
	if len(raw) == 0 || len(raw) > 8 {
		return 0, errors.New("timestamp length out of range")
	}
	var buf [8]byte
	copy(buf[8-len(raw):], raw)
	return int64(binary.BigEndian.Uint64(buf[:])), nil
}

func cutLast(s, sep string) (before, after string, ok bool) {
	i := strings.LastIndex(s, sep)
	if i < 0 {
		return "", "", false
	}
	return s[:i], s[i+len(sep):], true
}
