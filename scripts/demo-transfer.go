//go:build ignore

// demo-transfer.go - Moves tokens across a running bridge service
//
// Test Flow:
// 1. Check the service is ready
// 2. Approve the source bridge on the source chain
// 3. Submit the transfer
// 4. Poll the recipient balance on the destination chain
//
// Usage:
//   go run scripts/demo-transfer.go -key <hex> -bridge binance-source -source binance \
//     -dest arbitrum -token 0x202AEa9fC1401cF9a1629103A2b140E350e09C24 -amount 1000000000000000000
//
// For OFT bridges pass the LayerZero chain id as -chain and the chain name as -dest.

package main

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/chainsafe/rwa-bridge/pkg/admin"
	"github.com/chainsafe/rwa-bridge/pkg/auth"
)

var (
	baseURL  = flag.String("url", "http://localhost:8080", "Bridge service URL")
	keyHex   = flag.String("key", "", "Sender private key (hex)")
	bridgeID = flag.String("bridge", "binance-source", "Source or OFT bridge id")
	source   = flag.String("source", "binance", "Source chain name")
	dest     = flag.String("dest", "arbitrum", "Destination chain name")
	chain    = flag.String("chain", "", "Destination as the bridge knows it (defaults to -dest)")
	token    = flag.String("token", "", "Token address")
	to       = flag.String("to", "", "Recipient (defaults to the sender)")
	amount   = flag.String("amount", "1000000000000000000", "Amount in base units")
	fee      = flag.String("fee", "1000000000000000", "Transport fee in wei")
	timeout  = flag.Duration("timeout", 2*time.Minute, "How long to wait for delivery")
)

func main() {
	flag.Parse()

	key, err := crypto.HexToECDSA(strings.TrimPrefix(*keyHex, "0x"))
	if err != nil {
		fail("invalid key: %v", err)
	}
	sender := crypto.PubkeyToAddress(key.PublicKey)
	if *to == "" {
		*to = sender.Hex()
	}
	if *chain == "" {
		*chain = *dest
	}

	fmt.Println("=== Bridge Transfer Demo ===")
	fmt.Printf("Sender: %s\nRecipient: %s\n\n", sender.Hex(), *to)

	status, _ := call(nil, http.MethodGet, "/ready", nil, nil)
	if status != http.StatusOK {
		fail("service is not ready (status %d)", status)
	}

	var view admin.BridgeView
	mustCall(nil, http.MethodGet, "/api/v1/bridges/"+*bridgeID, nil, &view)
	fmt.Printf("[1/4] Bridge %s (%s) on %s at %s\n", view.ID, view.Kind, view.Chain, view.Address)

	before := balance(*dest, *token, *to)

	mustCall(key, http.MethodPost, fmt.Sprintf("/api/v1/chains/%s/tokens/%s/approve", *source, *token),
		admin.ApproveRequest{Spender: view.Address, Amount: *amount}, nil)
	fmt.Println("[2/4] Approved bridge")

	var receipt admin.Receipt
	mustCall(key, http.MethodPost, "/api/v1/bridges/"+*bridgeID+"/transfers", admin.TransferRequest{
		Token: *token, Recipient: *to, Chain: *chain, Amount: *amount, Fee: *fee,
	}, &receipt)
	fmt.Printf("[3/4] Dispatched message %s\n", receipt.MessageID)

	deadline := time.Now().Add(*timeout)
	for time.Now().Before(deadline) {
		after := balance(*dest, *token, *to)
		if after != before {
			fmt.Printf("[4/4] Delivered: balance on %s went from %s to %s\n", *dest, before, after)
			return
		}
		time.Sleep(2 * time.Second)
	}
	fail("transfer not delivered within %s; check GET /api/v1/transfers?status=failed", *timeout)
}

func balance(chain, token, account string) string {
	var resp admin.BalanceResponse
	mustCall(nil, http.MethodGet, fmt.Sprintf("/api/v1/chains/%s/tokens/%s/balances/%s", chain, token, account), nil, &resp)
	return resp.Balance
}

func mustCall(key *ecdsa.PrivateKey, method, path string, in, out any) {
	status, body := call(key, method, path, in, out)
	if status >= 300 {
		fail("%s %s: %d %s", method, path, status, body)
	}
}

// call signs the request when key is set
func call(key *ecdsa.PrivateKey, method, path string, in, out any) (int, string) {
	var reqBody []byte
	if in != nil {
		reqBody, _ = json.Marshal(in)
	}
	req, err := http.NewRequest(method, strings.TrimRight(*baseURL, "/")+path, bytes.NewReader(reqBody))
	if err != nil {
		fail("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if key != nil {
		if err := auth.SignRequest(req, key, time.Now()); err != nil {
			fail("sign request: %v", err)
		}
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fail("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if out != nil && resp.StatusCode < 300 {
		if err := json.Unmarshal(data, out); err != nil {
			fail("decode %s: %v", path, err)
		}
	}
	return resp.StatusCode, string(data)
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "✗ "+format+"\n", args...)
	os.Exit(1)
}
