package core

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Action kinds a wallet can authorize. The payload shape varies by kind, so
// ActionPayload carries the body opaquely and the hash covers both.
const (
	ActionAuthenticate = "authenticate"
	ActionUpdateConfig = "update_config"
	ActionManualSell   = "manual_sell"
	ActionSuspend      = "suspend"
	ActionResume       = "resume"
	ActionLaunchToken  = "launch_token"
	ActionStartMarket  = "start_market_making"
)

// ActionPayload is a tagged variant: the kind discriminator plus the raw JSON
// body of whatever that kind carries. A nil body is valid (plain
// authentication, suspend, resume).
type ActionPayload struct {
	Kind string          `json:"kind"`
	Body json.RawMessage `json:"body,omitempty"`
}

// VerifiedIntent is the proof object the authorizer hands to privileged
// mutation: this address approved exactly this payload.
type VerifiedIntent struct {
	Address string
	Payload ActionPayload
}

// Hash returns the canonical sha256 of the payload, hex encoded. The body is
// re-serialized with sorted keys and no insignificant whitespace so that two
// JSON encodings of the same object always hash identically.
func (p ActionPayload) Hash() (string, error) {
	canonical, err := canonicalJSON(p.Body)
	if err != nil {
		return "", fmt.Errorf("canonicalize payload body: %w", err)
	}

	h := sha256.New()
	h.Write([]byte(p.Kind))
	h.Write([]byte{0})
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// canonicalJSON decodes raw JSON and re-encodes it deterministically:
// object keys sorted, no whitespace. Empty input canonicalizes to "null".
func canonicalJSON(raw json.RawMessage) ([]byte, error) {
	if len(raw) == 0 {
		return []byte("null"), nil
	}

	var v interface{}
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}

	var b strings.Builder
	if err := encodeCanonical(&b, v); err != nil {
		return nil, err
	}
	return []byte(b.String()), nil
}

func encodeCanonical(b *strings.Builder, v interface{}) error {
	switch t := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return err
			}
			b.Write(kb)
			b.WriteByte(':')
			if err := encodeCanonical(b, t[k]); err != nil {
				return err
			}
		}
		b.WriteByte('}')
		return nil

	case []interface{}:
		b.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				b.WriteByte(',')
			}
			if err := encodeCanonical(b, e); err != nil {
				return err
			}
		}
		b.WriteByte(']')
		return nil

	case json.Number:
		b.WriteString(t.String())
		return nil

	default:
		eb, err := json.Marshal(t)
		if err != nil {
			return err
		}
		b.Write(eb)
		return nil
	}
}
