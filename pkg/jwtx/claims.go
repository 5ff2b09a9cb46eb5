package jwtx

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is the user identity carried in an access token.
type Identity struct {
	Subject     string
	DisplayName string
}

// segmentParser is only used for its base64url segment decoding. Padded
// segments are tolerated since some providers emit them.
var segmentParser = jwt.NewParser(jwt.WithPaddingAllowed())

// DecodeClaims returns the claims embedded in the payload segment of a
// compact token without verifying its signature. It returns nil for any
// malformed input: fewer than two segments, a payload that is not base64url,
// or a payload that is not a JSON object.
//
// The result is for local inspection only and must never be used as a trust
// decision; the identity provider and backend verify the token themselves.
func DecodeClaims(token string) jwt.MapClaims {
	parts := strings.Split(token, ".")
	if len(parts) < 2 {
		return nil
	}

	payload, err := segmentParser.DecodeSegment(parts[1])
	if err != nil {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var claims jwt.MapClaims
	if err := dec.Decode(&claims); err != nil || claims == nil {
		return nil
	}

	// Trailing data after the object means the payload was not a single
	// JSON value.
	if dec.More() {
		return nil
	}

	return claims
}

// Expiry returns the instant encoded in the "exp" claim, at millisecond
// precision. The second result is false when the token is malformed or the
// claim is absent or not a number.
func Expiry(token string) (time.Time, bool) {
	claims := DecodeClaims(token)
	if claims == nil {
		return time.Time{}, false
	}

	var exp float64
	switch v := claims["exp"].(type) {
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return time.Time{}, false
		}
		exp = f
	case float64:
		exp = v
	default:
		return time.Time{}, false
	}

	if math.IsNaN(exp) || math.IsInf(exp, 0) {
		return time.Time{}, false
	}

	return time.UnixMilli(int64(exp * 1000)), true
}

// IdentityFromToken extracts the subject and a display name from the token.
// The display name is "preferred_username" when present, otherwise the
// subject. Returns nil when the token has no non-empty "sub".
func IdentityFromToken(token string) *Identity {
	claims := DecodeClaims(token)
	if claims == nil {
		return nil
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil
	}

	display, _ := claims["preferred_username"].(string)
	if display == "" {
		display = sub
	}

	return &Identity{
		Subject:     sub,
		DisplayName: display,
	}
}
