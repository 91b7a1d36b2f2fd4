// Package token mints and verifies the signed capability tokens that let a
// computed highlight range travel to the client and back as a voting credential.
// Tokens are HS256 JWTs carrying the range bounds and the requesting user as
// audience; they are never persisted.
package token

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Verification failures. Handlers surface all of these as one generic
// validation error so clients cannot distinguish which check failed.
var (
	ErrInvalidToken     = errors.New("invalid range token")
	ErrExpired          = errors.New("range token expired")
	ErrAudienceMismatch = errors.New("range token audience mismatch")
)

// TTL is the capability lifetime: one day plus a small grace window.
const TTL = 24*time.Hour + 5*time.Second

// Payload is the decoded content of a verified range token.
type Payload struct {
	VideoID int64
	Start   int
	End     int
}

type rangeClaims struct {
	VideoID int64 `json:"vid"`
	Start   int   `json:"hs"`
	End     int   `json:"he"`
	jwt.RegisteredClaims
}

// Codec signs and verifies range tokens with a single process-wide secret.
type Codec struct {
	secret []byte
}

// NewCodec returns a Codec signing with the given secret.
func NewCodec(secret []byte) (*Codec, error) {
	if len(secret) == 0 {
		return nil, errors.New("token secret is empty")
	}
	return &Codec{secret: secret}, nil
}

// Mint signs a token asserting that the range (start, end) of videoID was
// computed for userID at time now. The token expires TTL after now.
func (c *Codec) Mint(userID, videoID int64, start, end int, now time.Time) (string, error) {
	claims := rangeClaims{
		VideoID: videoID,
		Start:   start,
		End:     end,
		RegisteredClaims: jwt.RegisteredClaims{
			Audience:  jwt.ClaimStrings{strconv.FormatInt(userID, 10)},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(TTL)),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign range token: %w", err)
	}
	return signed, nil
}

// Verify checks signature, structure, expiry, and audience, in that order of
// error precedence. On success it returns the encoded range.
func (c *Codec) Verify(tokenStr string, userID int64, now time.Time) (Payload, error) {
	var claims rangeClaims
	_, err := jwt.ParseWithClaims(tokenStr, &claims,
		func(t *jwt.Token) (interface{}, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithAudience(strconv.FormatInt(userID, 10)),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return Payload{}, ErrExpired
		case errors.Is(err, jwt.ErrTokenInvalidAudience):
			return Payload{}, ErrAudienceMismatch
		default:
			return Payload{}, ErrInvalidToken
		}
	}
	return Payload{VideoID: claims.VideoID, Start: claims.Start, End: claims.End}, nil
}
