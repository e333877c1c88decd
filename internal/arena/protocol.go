package arena

import (
	"encoding/json"
	"fmt"

	"coinrush/internal/game"
	"coinrush/internal/rewards"
	"coinrush/internal/store"
	"coinrush/internal/wallet"
)

// Message types on the play stream.
const (
	MsgWelcome  = "welcome"
	MsgSnapshot = "snapshot"
	MsgResult   = "result"
	MsgOutcome  = "outcome"
	MsgError    = "error"

	MsgClick   = "click"
	MsgExit    = "exit"
	MsgRestart = "restart"
)

// Envelope wraps every message: t is the type, p the payload.
type Envelope struct {
	T string          `json:"t"`
	P json.RawMessage `json:"p,omitempty"`
}

func Encode(t string, payload any) ([]byte, error) {
	if t == "" {
		return nil, fmt.Errorf("encode: empty message type")
	}
	e := Envelope{T: t}
	if payload != nil {
		pb, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		e.P = pb
	}
	return json.Marshal(e)
}

func DecodeEnvelope(b []byte) (Envelope, error) {
	if len(b) == 0 {
		return Envelope{}, fmt.Errorf("decode: empty message")
	}
	var e Envelope
	if err := json.Unmarshal(b, &e); err != nil {
		return Envelope{}, err
	}
	return e, nil
}

func DecodePayload[T any](env Envelope) (T, error) {
	var out T
	if len(env.P) == 0 {
		return out, fmt.Errorf("empty payload for type %q", env.T)
	}
	err := json.Unmarshal(env.P, &out)
	return out, err
}

type ClickMsg struct {
	TokenID string `json:"token_id"`
}

type Welcome struct {
	SessionID string     `json:"session_id"`
	Mode      string     `json:"mode"`
	Round     int        `json:"round"`
	FrameHz   int        `json:"frame_hz"`
	Field     game.Field `json:"field"`
}

// ResultMsg is the settled outcome of one round.
type ResultMsg struct {
	Result    store.Result        `json:"result"`
	Breakdown rewards.Breakdown   `json:"breakdown"`
	Standings []game.Standing     `json:"standings"`
	RewardTx  *wallet.Transaction `json:"reward_tx,omitempty"`
}

type ErrorMsg struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
