package statetoken

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// LoginState is the transient state of one login attempt: the anti-CSRF
// state value sent to the provider, the nonce bound into the ID token, and
// where to send the browser after the callback completes.
type LoginState struct {
	State    string `json:"state"`
	Nonce    string `json:"nonce"`
	ReturnTo string `json:"return_to"`
}

type stateClaims struct {
	State    string `json:"state"`
	Nonce    string `json:"nonce"`
	ReturnTo string `json:"return_to"`
	jwt.RegisteredClaims
}

var ErrInvalid = errors.New("invalid state token")

// NewValue returns a fresh unguessable state/nonce value.
func NewValue() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Issue signs a login state into a compact token suitable for a short-lived
// HttpOnly cookie.
func Issue(secret []byte, st LoginState, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := stateClaims{
		State:    st.State,
		Nonce:    st.Nonce,
		ReturnTo: st.ReturnTo,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	jt := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return jt.SignedString(secret)
}

// Verify checks signature and expiry and returns the embedded login state.
// Any failure maps to ErrInvalid; callers treat it as an authentication
// failure, not something to distinguish further.
func Verify(secret []byte, raw string) (*LoginState, error) {
	var claims stateClaims
	tok, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if !tok.Valid || claims.State == "" {
		return nil, ErrInvalid
	}
	return &LoginState{State: claims.State, Nonce: claims.Nonce, ReturnTo: claims.ReturnTo}, nil
}
