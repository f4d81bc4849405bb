// Package api implements the two signed-envelope extraction styles used
// across the contract server's HTTP surface: in-body signatures (share
// tokens) and header signatures (withdrawals, directory responses).
// Both are pure functions of their inputs -- no shared state, no
// mutation -- so they can be unit tested without a running server.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"wireskip-contract/internal/contract/b64e"
	"wireskip-contract/internal/contract/model"
	"wireskip-contract/internal/contract/sign"
)

// DecodeSignedSharetoken parses and verifies an in-body-signed share
// token. The signature is verified against the canonical digest of the
// parsed struct, not the raw bytes.
func DecodeSignedSharetoken(body []byte) (*model.Sharetoken, error) {
	var st model.Sharetoken
	if err := json.Unmarshal(body, &st); err != nil {
		return nil, fmt.Errorf("malformed sharetoken: %w", err)
	}
	if err := sign.VerifySharetoken(&st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Signatory identifies who signed a header-signed request.
type Signatory string

const (
	SignatoryAuth      Signatory = "auth"
	SignatoryRelay     Signatory = "relay"
	SignatoryClient    Signatory = "client"
	SignatoryContract  Signatory = "contract"
	SignatoryDirectory Signatory = "directory"
)

func validSignatory(s string) (Signatory, bool) {
	switch Signatory(s) {
	case SignatoryAuth, SignatoryRelay, SignatoryClient, SignatoryContract, SignatoryDirectory:
		return Signatory(s), true
	default:
		return "", false
	}
}

// HeaderSigned is the result of successfully verifying a header-signed
// request: who signed it, their key, and the raw body bytes (still
// undecoded -- callers unmarshal into their own payload type).
type HeaderSigned struct {
	Signatory Signatory
	PublicKey b64e.PubKey
	Signature b64e.Sig
	Body      []byte
}

// ExtractHeaderSigned parses headers of the form
// wireleap-<signatory>-{pubkey,signature}, requiring exactly one
// matching pair, and verifies the signature against the raw request body
// bytes (not the parsed JSON).
func ExtractHeaderSigned(h http.Header, body []byte) (*HeaderSigned, error) {
	var signatory Signatory
	var pubHeader, sigHeader string
	var havePub, haveSig bool

	for name, values := range h {
		lower := strings.ToLower(name)
		if !strings.HasPrefix(lower, "wireleap-") {
			continue
		}
		parts := strings.Split(lower, "-")
		if len(parts) != 3 {
			continue
		}
		who, ok := validSignatory(parts[1])
		if !ok {
			continue
		}
		if len(values) != 1 {
			return nil, fmt.Errorf("duplicate header %s", name)
		}
		switch parts[2] {
		case "pubkey":
			if havePub {
				return nil, fmt.Errorf("duplicate pubkey header")
			}
			if signatory != "" && signatory != who {
				return nil, fmt.Errorf("conflicting signatory headers")
			}
			signatory, pubHeader, havePub = who, values[0], true
		case "signature":
			if haveSig {
				return nil, fmt.Errorf("duplicate signature header")
			}
			if signatory != "" && signatory != who {
				return nil, fmt.Errorf("conflicting signatory headers")
			}
			signatory, sigHeader, haveSig = who, values[0], true
		default:
			continue
		}
	}

	if !havePub || !haveSig {
		return nil, fmt.Errorf("missing headers")
	}

	pk, err := b64e.Decode(pubHeader)
	if err != nil {
		return nil, fmt.Errorf("malformed public key header: %w", err)
	}
	sig, err := b64e.Decode(sigHeader)
	if err != nil {
		return nil, fmt.Errorf("malformed signature header: %w", err)
	}

	if err := sign.VerifyBytes(b64e.PubKey(pk), body, b64e.Sig(sig)); err != nil {
		return nil, err
	}

	return &HeaderSigned{
		Signatory: signatory,
		PublicKey: b64e.PubKey(pk),
		Signature: b64e.Sig(sig),
		Body:      body,
	}, nil
}

// DecodeHeaderSignedJSON verifies the header signature over body and
// then unmarshals body into v.
func DecodeHeaderSignedJSON(h http.Header, body []byte, v interface{}) (*HeaderSigned, error) {
	hs, err := ExtractHeaderSigned(h, body)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return nil, fmt.Errorf("malformed request body: %w", err)
	}
	return hs, nil
}
