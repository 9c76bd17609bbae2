// Package auth provides bearer-token verification for the local API. Token
// issuance lives in the account service, not here.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
)

// Verifier validates JWTs presented to the admin and query endpoints.
// Modes: dev (no verify, token is the subject) and hmac (HS256).
type Verifier struct {
	Mode       string
	HMACSecret []byte
}

// Principal is the authenticated caller identity.
type Principal struct {
	Subject string
}

func NewVerifier(mode, hmacSecret string) *Verifier {
	if mode == "" {
		mode = "dev"
	}
	return &Verifier{Mode: strings.ToLower(mode), HMACSecret: []byte(hmacSecret)}
}

func (v *Verifier) Verify(token string) (Principal, error) {
	switch v.Mode {
	case "dev":
		if token == "" {
			return Principal{}, errors.New("empty token")
		}
		return Principal{Subject: token}, nil
	case "hmac":
		segs := strings.Split(token, ".")
		if len(segs) != 3 {
			return Principal{}, errors.New("invalid JWT")
		}
		payloadJSON, err := b64urlDecode(segs[1])
		if err != nil {
			return Principal{}, err
		}
		sig, err := b64urlDecode(segs[2])
		if err != nil {
			return Principal{}, err
		}
		mac := hmac.New(sha256.New, v.HMACSecret)
		mac.Write([]byte(segs[0] + "." + segs[1]))
		if !hmac.Equal(mac.Sum(nil), sig) {
			return Principal{}, errors.New("bad signature")
		}
		var claims map[string]any
		if err := json.Unmarshal(payloadJSON, &claims); err != nil {
			return Principal{}, err
		}
		sub, _ := claims["sub"].(string)
		if sub == "" {
			return Principal{}, errors.New("missing sub claim")
		}
		return Principal{Subject: sub}, nil
	default:
		return Principal{}, errors.New("unsupported auth mode")
	}
}

func b64urlDecode(s string) ([]byte, error) { return base64.RawURLEncoding.DecodeString(s) }
