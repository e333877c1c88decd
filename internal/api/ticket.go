package api

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var errInvalidTicket = errors.New("invalid ticket")

// Tickets issues the short-lived tokens that bind a play-stream connection
// to the session and wallet that paid for it.
type Tickets struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

type Ticket struct {
	SessionID string
	Address   string
	ExpiresAt time.Time
}

func NewTickets(secret string, ttl time.Duration) (*Tickets, error) {
	if len(secret) < 16 {
		return nil, fmt.Errorf("jwt secret must be at least 16 bytes")
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Tickets{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

func (t *Tickets) Issue(sessionID, address string) (string, time.Time, error) {
	now := t.now()
	exp := now.Add(t.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sid":  sessionID,
		"addr": address,
		"iat":  now.Unix(),
		"exp":  exp.Unix(),
	})
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign ticket: %w", err)
	}
	return signed, exp, nil
}

func (t *Tickets) Parse(raw string) (Ticket, error) {
	token, err := jwt.Parse(raw, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithTimeFunc(t.now))
	if err != nil || !token.Valid {
		return Ticket{}, fmt.Errorf("%w: %v", errInvalidTicket, err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Ticket{}, errInvalidTicket
	}
	sid, _ := claims["sid"].(string)
	addr, _ := claims["addr"].(string)
	if sid == "" {
		return Ticket{}, fmt.Errorf("%w: missing session", errInvalidTicket)
	}
	exp, _ := claims.GetExpirationTime()
	tk := Ticket{SessionID: sid, Address: addr}
	if exp != nil {
		tk.ExpiresAt = exp.Time
	}
	return tk, nil
}
