package api

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"net/http"
	"testing"

	"wireskip-contract/internal/contract/model"
	"wireskip-contract/internal/contract/sign"
)

func newTestSigner(t *testing.T) *sign.Signer {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	return sign.NewSigner(priv)
}

func headerSignedRequest(t *testing.T, signer *sign.Signer, who Signatory, body []byte) http.Header {
	t.Helper()
	sig := signer.SignBytes(body)
	h := make(http.Header)
	h.Set("wireleap-"+string(who)+"-pubkey", signer.PublicKey().String())
	h.Set("wireleap-"+string(who)+"-signature", sig.String())
	return h
}

func TestExtractHeaderSignedRoundTrip(t *testing.T) {
	signer := newTestSigner(t)
	body := []byte(`{"type":"bank"}`)
	h := headerSignedRequest(t, signer, SignatoryRelay, body)

	hs, err := ExtractHeaderSigned(h, body)
	if err != nil {
		t.Fatalf("ExtractHeaderSigned: %v", err)
	}
	if hs.Signatory != SignatoryRelay {
		t.Fatalf("want relay signatory, got %v", hs.Signatory)
	}
	if hs.PublicKey.String() != signer.PublicKey().String() {
		t.Fatalf("public key mismatch")
	}
}

func TestExtractHeaderSignedRejectsTamperedBody(t *testing.T) {
	signer := newTestSigner(t)
	body := []byte(`{"type":"bank"}`)
	h := headerSignedRequest(t, signer, SignatoryRelay, body)

	_, err := ExtractHeaderSigned(h, []byte(`{"type":"crypto"}`))
	if err == nil {
		t.Fatalf("want error verifying tampered body")
	}
}

func TestExtractHeaderSignedRequiresBothHeaders(t *testing.T) {
	signer := newTestSigner(t)
	body := []byte(`{}`)
	h := make(http.Header)
	h.Set("wireleap-relay-pubkey", signer.PublicKey().String())

	_, err := ExtractHeaderSigned(h, body)
	if err == nil {
		t.Fatalf("want error with only a pubkey header")
	}
}

func TestDecodeHeaderSignedJSONUnmarshals(t *testing.T) {
	signer := newTestSigner(t)
	req := model.WithdrawalRequest{Type: "bank", Destination: "acct-1"}
	body, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	h := headerSignedRequest(t, signer, SignatoryRelay, body)

	var got model.WithdrawalRequest
	hs, err := DecodeHeaderSignedJSON(h, body, &got)
	if err != nil {
		t.Fatalf("DecodeHeaderSignedJSON: %v", err)
	}
	if hs.Signatory != SignatoryRelay || got.Destination != "acct-1" {
		t.Fatalf("unexpected decode result: hs=%+v got=%+v", hs, got)
	}
}

func TestDecodeSignedSharetokenRejectsBadSignature(t *testing.T) {
	contractSigner := newTestSigner(t)
	relaySigner := newTestSigner(t)

	c := model.SKContract{SettlementOpen: 1, SettlementClose: 2}
	contractSigner.SignContract(&c)

	st := model.Sharetoken{
		Version:     1,
		PublicKey:   relaySigner.PublicKey(),
		RelayPubkey: relaySigner.PublicKey(),
		Nonce:       "abc",
		Contract:    c,
	}
	st.Signature = relaySigner.Sign(st.Digest())

	body, err := json.Marshal(st)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if _, err := DecodeSignedSharetoken(body); err != nil {
		t.Fatalf("DecodeSignedSharetoken on valid token: %v", err)
	}

	var tampered model.Sharetoken
	if err := json.Unmarshal(body, &tampered); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	tampered.Nonce = "tampered"
	tamperedBody, err := json.Marshal(tampered)
	if err != nil {
		t.Fatalf("Marshal tampered: %v", err)
	}
	if _, err := DecodeSignedSharetoken(tamperedBody); err == nil {
		t.Fatalf("want error decoding tampered share token")
	}
}
