package blockchain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
)

// storeEvidenceABI is the fragment of the evidence registry contract
// the anchorer calls.
const storeEvidenceABI = `[{
	"inputs": [
		{"internalType": "string", "name": "caseId", "type": "string"},
		{"internalType": "string", "name": "mediaHash", "type": "string"},
		{"internalType": "string", "name": "reportHash", "type": "string"}
	],
	"name": "storeEvidence",
	"outputs": [],
	"stateMutability": "nonpayable",
	"type": "function"
}]`

const anchorGasLimit = uint64(300000)

// ErrAnchoringDisabled is returned by a disabled anchorer. Callers
// treat it like any anchoring failure, the only difference is the
// status label shown to clients.
var ErrAnchoringDisabled = errors.New("anchoring disabled")

// FromWei converts a wei amount to ether for display.
func FromWei(src *big.Int) float64 {
	res, _ := decimal.NewFromBigInt(src, -18).Float64()
	return res
}

// Anchorer records case evidence hashes on an external EVM ledger. A
// zero-config deployment gets a disabled instance whose Anchor never
// touches the network.
type Anchorer struct {
	client          *ethclient.Client
	chainID         *big.Int
	privateKey      *ecdsa.PrivateKey
	fromAddress     ethcommon.Address
	contractAddress ethcommon.Address
	contractABI     abi.ABI
	contract        *bind.BoundContract
	timeout         time.Duration
	enabled         bool
}

// Disabled returns an anchorer that reports every anchor attempt as
// ErrAnchoringDisabled without any network IO.
func Disabled() *Anchorer {
	return &Anchorer{}
}

// NewAnchorer connects to the ledger and prepares the signing identity.
func NewAnchorer(ethNetworkURL, privateKey, contractAddress string, timeout time.Duration) (*Anchorer, error) {
	a := &Anchorer{timeout: timeout}

	client, err := ethclient.Dial(ethNetworkURL)
	if err != nil {
		return nil, fmt.Errorf("error creating ethclient with the network url %s: %w", ethNetworkURL, err)
	}
	a.client = client

	chainID, err := client.NetworkID(context.Background())
	if err != nil {
		return nil, fmt.Errorf("error getting network ID: %w", err)
	}
	a.chainID = chainID

	if len(privateKey) == 0 {
		return nil, fmt.Errorf("the eth private key param isn't specified")
	}
	a.privateKey, err = crypto.HexToECDSA(privateKey)
	if err != nil {
		return nil, fmt.Errorf("error converting private key: %w", err)
	}

	publicKey := a.privateKey.Public()
	publicKeyECDSA, ok := publicKey.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("error creating ECDSA public key from %v", publicKey)
	}
	a.fromAddress = crypto.PubkeyToAddress(*publicKeyECDSA)
	a.contractAddress = ethcommon.HexToAddress(contractAddress)

	a.contractABI, err = abi.JSON(strings.NewReader(storeEvidenceABI))
	if err != nil {
		return nil, fmt.Errorf("error parsing evidence contract ABI: %w", err)
	}
	a.contract = bind.NewBoundContract(a.contractAddress, a.contractABI, client, client, client)

	balance, err := client.BalanceAt(context.Background(), a.fromAddress, nil)
	if err != nil {
		return nil, fmt.Errorf("error getting wallet balance: %w", err)
	}

	a.enabled = true
	log.Infof("Anchorer initialized, chain ID: %v, contract address: %v, wallet: %v, balance: %f ETH",
		a.chainID, a.contractAddress, a.fromAddress, FromWei(balance))

	return a, nil
}

// Enabled reports whether the anchorer can submit transactions.
func (a *Anchorer) Enabled() bool {
	return a != nil && a.enabled
}

// Anchor submits storeEvidence(caseId, mediaHash, reportHash) and waits
// for the transaction to mine, bounded by the configured timeout. One
// attempt, no retry: a timed-out anchor is a failed anchor.
func (a *Anchorer) Anchor(ctx context.Context, caseID, mediaHash, reportHash string) (string, error) {
	if !a.Enabled() {
		return "", ErrAnchoringDisabled
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	nonce, err := a.client.PendingNonceAt(ctx, a.fromAddress)
	if err != nil {
		return "", fmt.Errorf("error getting pending nonce: %w", err)
	}

	gasPrice, err := a.client.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("error getting gas price: %w", err)
	}

	auth, err := bind.NewKeyedTransactorWithChainID(a.privateKey, a.chainID)
	if err != nil {
		return "", fmt.Errorf("error creating transactor: %w", err)
	}
	auth.Nonce = big.NewInt(int64(nonce))
	auth.Value = big.NewInt(0)
	auth.GasLimit = anchorGasLimit
	auth.GasPrice = gasPrice
	auth.Context = ctx

	log.Infof("Storing evidence on ledger, case %s, media hash %s..., report hash %s...",
		caseID, mediaHash[:16], reportHash[:16])

	tx, err := a.contract.Transact(auth, "storeEvidence", caseID, mediaHash, reportHash)
	if err != nil {
		return "", fmt.Errorf("call contract store evidence: %w", err)
	}

	receipt, err := bind.WaitMined(ctx, a.client, tx)
	if err != nil {
		return "", fmt.Errorf("waiting for anchor transaction %s: %w", tx.Hash(), err)
	}
	if receipt.Status != 1 {
		return "", fmt.Errorf("anchor transaction %s reverted", tx.Hash())
	}

	log.Infof("Evidence stored on ledger, tx %s, block %v", tx.Hash(), receipt.BlockNumber)
	return tx.Hash().Hex(), nil
}
