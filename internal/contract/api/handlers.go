// Handlers wire the contract server's HTTP surface onto the component
// packages: directory, accesskey, skissue, tracker, withdraw and the
// ledger. Each handler decodes/verifies its own request envelope and
// returns model.Status on failure, matching the JSON error shape every
// wireleap endpoint uses.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"wireskip-contract/internal/contract/accesskey"
	"wireskip-contract/internal/contract/directory"
	"wireskip-contract/internal/contract/ledger"
	"wireskip-contract/internal/contract/metrics"
	"wireskip-contract/internal/contract/model"
	"wireskip-contract/internal/contract/sign"
	"wireskip-contract/internal/contract/skissue"
	"wireskip-contract/internal/contract/tracker"
	"wireskip-contract/internal/contract/withdraw"
)

// Deps bundles every collaborator a handler might need. Each handler is
// a method on *Deps, one per endpoint, so each one stays independently
// testable with a hand-built Deps.
type Deps struct {
	Signer     *sign.Signer
	Directory  *directory.Directory
	Tracker    *tracker.Tracker
	Ledger     *ledger.Ledger
	Withdraw   *withdraw.Pipeline
	Now        func() int64
	Public     func() model.Public
	Logger     *logrus.Logger
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, model.ErrorStatus(code, err))
}

// Info handles GET /info.
func (d *Deps) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, d.Public())
}

// Relays handles GET /relays: the response body is signed by the
// contract server itself, carried in wireleap-directory-{pubkey,signature}
// response headers.
func (d *Deps) Relays(w http.ResponseWriter, r *http.Request) {
	body, err := json.Marshal(d.Directory.Snapshot())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	sig := d.Signer.SignBytes(body)
	w.Header().Set("wireleap-directory-pubkey", d.Signer.PublicKey().String())
	w.Header().Set("wireleap-directory-signature", sig.String())
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// RegisterRelay handles POST /relays: a header-signed relay
// registration. The signature is verified; the signatory is not checked.
func (d *Deps) RegisterRelay(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	var relay model.Relay
	if _, err := DecodeHeaderSignedJSON(r.Header, body, &relay); err != nil {
		writeErr(w, http.StatusUnauthorized, err)
		return
	}
	if err := d.Directory.Register(relay); err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, model.OK())
}

// DeregisterRelay handles DELETE /relays.
func (d *Deps) DeregisterRelay(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	var relay model.Relay
	if _, err := DecodeHeaderSignedJSON(r.Header, body, &relay); err != nil {
		writeErr(w, http.StatusUnauthorized, err)
		return
	}
	if err := d.Directory.Deregister(relay); err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, directory.ErrNotFound) {
			code = http.StatusNotFound
		}
		writeErr(w, code, err)
		return
	}
	writeJSON(w, http.StatusOK, model.OK())
}

// IssueAccesskeys handles POST /issue-accesskeys.
func (d *Deps) IssueAccesskeys(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	var hs *HeaderSigned
	var req model.AccesskeyRequest
	if hs, err = DecodeHeaderSignedJSON(r.Header, body, &req); err != nil {
		writeErr(w, http.StatusUnauthorized, err)
		return
	}
	if hs.Signatory != SignatoryAuth {
		writeErr(w, http.StatusForbidden, errors.New("wrong signatory for accesskey issuance"))
		return
	}
	pofs, err := accesskey.Issue(d.Signer, d.Now(), req.Type, req.Quantity, req.Duration)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	ak := model.Accesskey{
		Version:  "1",
		Contract: model.ContractRef{Endpoint: d.Public().Endpoint, PublicKey: d.Signer.PublicKey()},
		Pofs:     pofs,
	}
	writeJSON(w, http.StatusOK, ak)
}

// ActivateServicekey handles POST /servicekey/activate.
func (d *Deps) ActivateServicekey(w http.ResponseWriter, r *http.Request, servicekeyDuration, submissionWindow int64) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	var req model.ActivationRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	if err := sign.VerifyDigest(req.PublicKey, req.Pof.Digest(), req.Pof.Signature); err != nil {
		writeErr(w, http.StatusUnauthorized, err)
		return
	}
	if req.Pof.Expiration < d.Now() {
		writeErr(w, http.StatusGone, errors.New("proof of funding has expired"))
		return
	}
	contract := skissue.Activate(d.Signer, d.Now(), servicekeyDuration, submissionWindow)
	writeJSON(w, http.StatusOK, contract)
}

// Submit handles POST /submit: an in-body-signed share token.
func (d *Deps) Submit(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	st, err := DecodeSignedSharetoken(body)
	if err != nil {
		writeErr(w, http.StatusUnauthorized, err)
		return
	}
	if err := sign.VerifyDigest(d.Signer.PublicKey(), st.Contract.Digest(), st.Contract.Signature); err != nil {
		writeErr(w, http.StatusUnauthorized, errors.New("share token's contract was not issued by this contract server"))
		return
	}
	now := d.Now()
	if st.Contract.SettlementClose < now {
		writeErr(w, http.StatusGone, errors.New("settlement window has already closed"))
		return
	}
	d.Tracker.Push(now, st)
	metrics.SharetokensSubmitted.Inc()
	writeJSON(w, http.StatusOK, model.OK())
}

// VerifyWithdrawalRequest handles POST /verify-withdrawal-request: a
// backwards-compat stub that exists for payment-system callbacks. It
// replies 200 OK once the request body decodes; the actual payout-type
// and signature checks live in Withdraw.
func (d *Deps) VerifyWithdrawalRequest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	var req model.WithdrawalRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, model.OK())
}

// Withdraw handles POST /withdraw.
func (d *Deps) Withdraw(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	var req model.WithdrawalRequest
	hs, err := DecodeHeaderSignedJSON(r.Header, body, &req)
	if err != nil {
		writeErr(w, http.StatusUnauthorized, err)
		return
	}
	if hs.Signatory != SignatoryRelay {
		writeErr(w, http.StatusForbidden, errors.New("wrong signatory for withdrawal"))
		return
	}
	relayPK := hs.PublicKey.String()

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	result, err := d.Withdraw.Submit(ctx, d.Now(), relayPK, req)
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, ledger.ErrAlreadyPending) || errors.Is(err, ledger.ErrInsufficientBalance) {
			code = http.StatusConflict
		}
		writeErr(w, code, err)
		return
	}
	metrics.WithdrawalsSubmitted.WithLabelValues(req.Type).Inc()
	writeJSON(w, http.StatusOK, result)
}

// PayoutBalance handles GET /payout/balance.
func (d *Deps) PayoutBalance(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	hs, err := ExtractHeaderSigned(r.Header, body)
	if err != nil {
		writeErr(w, http.StatusUnauthorized, err)
		return
	}
	currency, available, pending := d.Ledger.Get(hs.PublicKey.String())
	writeJSON(w, http.StatusOK, model.BalanceView{Currency: currency, Available: available, Pending: pending})
}
