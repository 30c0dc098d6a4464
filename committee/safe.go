package committee

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/ruteri/tee-service-provisioning-backend/attestation"
)

// safeMessageEIP712Types mirrors the EIP-712 type definitions the Safe
// Transaction Service signs messages against: a single dynamic "bytes"
// field wrapping the already-prefixed personal-sign hash of the payload.
var safeMessageEIP712Types = apitypes.Types{
	"EIP712Domain": {
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	"SafeMessage": {
		{Name: "message", Type: "bytes"},
	},
}

// SafeMessage is the Safe Transaction Service's representation of a
// message registered against a Safe, including its collected owner
// confirmations.
type safeMessage struct {
	Safe          string                    `json:"safe"`
	MessageHash   string                    `json:"messageHash"`
	Confirmations []safeMessageConfirmation `json:"confirmations"`
}

type safeMessageConfirmation struct {
	Owner     string `json:"owner"`
	Signature string `json:"signature"`
}

// SafeOracle authorizes canonical measurement strings against a Gnosis
// Safe M-of-N multisig, via the Safe Transaction Service's REST API. It
// requires a positive approval to have at least Threshold confirmations,
// and treats a "REVOKE: <message>" approval of equal or greater weight as
// an unconditional veto, checked first.
type SafeOracle struct {
	WalletAddress  common.Address
	ChainID        *big.Int
	Threshold      int
	TransactionAPI string // base URL, e.g. https://safe-transaction-mainnet.safe.global/api/v1
	HTTPClient     *http.Client
}

// NewSafeOracle constructs a SafeOracle. httpClient may be nil, in which
// case http.DefaultClient is used.
func NewSafeOracle(wallet common.Address, chainID *big.Int, threshold int, transactionAPI string, httpClient *http.Client) *SafeOracle {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &SafeOracle{
		WalletAddress:  wallet,
		ChainID:        chainID,
		Threshold:      threshold,
		TransactionAPI: transactionAPI,
		HTTPClient:     httpClient,
	}
}

func (o *SafeOracle) IsAuthorized(_ Kind, measurementString string) (bool, error) {
	revokeHash, err := o.messageHash("REVOKE: " + measurementString)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
	}
	revoked, err := o.fetchMessage(revokeHash)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
	}
	if revoked != nil && len(revoked.Confirmations) >= o.Threshold {
		return false, nil
	}

	messageHash, err := o.messageHash(measurementString)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
	}
	approved, err := o.fetchMessage(messageHash)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
	}
	if approved == nil {
		return false, nil
	}
	if approved.Safe != o.WalletAddress.Hex() {
		return false, nil
	}
	return len(approved.Confirmations) >= o.Threshold, nil
}

func (o *SafeOracle) AuthorizeAttestation(v attestation.Verified) error {
	return authorizeBoth(o, v)
}

// messageHash reproduces safe_hash from the original governance module:
// the EIP-712 hash of a SafeMessage struct wrapping the personal-sign
// digest of message, over the {chainId, verifyingContract} domain.
func (o *SafeOracle) messageHash(message string) (string, error) {
	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)
	innerHash := ethcrypto.Keccak256([]byte(prefixed))

	typedData := apitypes.TypedData{
		Types:       safeMessageEIP712Types,
		PrimaryType: "SafeMessage",
		Domain: apitypes.TypedDataDomain{
			ChainId:           (*math.HexOrDecimal256)(o.ChainID),
			VerifyingContract: o.WalletAddress.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"message": hexutilEncode(innerHash),
		},
	}

	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return "", fmt.Errorf("hash domain: %w", err)
	}
	structHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return "", fmt.Errorf("hash message: %w", err)
	}

	digest := ethcrypto.Keccak256([]byte{0x19, 0x01}, domainSeparator, structHash)
	return "0x" + hex.EncodeToString(digest), nil
}

func (o *SafeOracle) fetchMessage(messageHash string) (*safeMessage, error) {
	url := fmt.Sprintf("%s/messages/%s/", o.TransactionAPI, messageHash)
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := o.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNotFound:
		return nil, nil
	case http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		var msg safeMessage
		if err := json.Unmarshal(body, &msg); err != nil {
			return nil, err
		}
		return &msg, nil
	default:
		return nil, fmt.Errorf("safe transaction service returned status %d", resp.StatusCode)
	}
}

func hexutilEncode(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}
