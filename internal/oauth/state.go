package oauth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
)

// State is the payload that round-trips through the provider redirect.
// Providers pass it back unmodified; the HMAC signature is what makes
// it trustworthy on return.
type State struct {
	Provider   Provider `json:"provider"`
	RedirectTo string   `json:"redirect_to,omitempty"`
}

// StateCodec signs and verifies state payloads with HMAC-SHA256.
type StateCodec struct {
	key []byte
}

func NewStateCodec(secret string) (*StateCodec, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("oauth state secret is required")
	}
	return &StateCodec{key: []byte(secret)}, nil
}

// Encode serializes the state and appends its signature:
// base64url(json) + "." + base64url(hmac).
func (c *StateCodec) Encode(s State) (string, error) {
	payload, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	encoded := base64.RawURLEncoding.EncodeToString(payload)

	mac := hmac.New(sha256.New, c.key)
	mac.Write([]byte(encoded))
	sig := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))

	return encoded + "." + sig, nil
}

// Decode verifies the signature and returns the embedded state.
func (c *StateCodec) Decode(raw string) (State, error) {
	encoded, sigPart, ok := strings.Cut(raw, ".")
	if !ok {
		return State{}, errors.New("malformed oauth state")
	}

	sig, err := base64.RawURLEncoding.DecodeString(sigPart)
	if err != nil {
		return State{}, errors.New("malformed oauth state")
	}
	mac := hmac.New(sha256.New, c.key)
	mac.Write([]byte(encoded))
	if !hmac.Equal(mac.Sum(nil), sig) {
		return State{}, errors.New("oauth state signature mismatch")
	}

	payload, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return State{}, errors.New("malformed oauth state")
	}
	var s State
	if err := json.Unmarshal(payload, &s); err != nil {
		return State{}, errors.New("malformed oauth state")
	}
	return s, nil
}
