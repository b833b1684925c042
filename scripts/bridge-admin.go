//go:build ignore

// bridge-admin.go - Sends one signed request to the bridge API
//
// Usage:
//   go run scripts/bridge-admin.go -key <hex private key> -method POST -path /api/v1/bridges/binance-source/pause
//   go run scripts/bridge-admin.go -key <hex> -method PUT -path /api/v1/bridges/binance-source/tokens/0x.../daily-limit -body '{"amount":"1000"}'
//
// Flags:
//   -url     Base URL of the bridge service (default http://localhost:8080)
//   -key     Private key of the caller, hex without 0x
//   -method  HTTP method
//   -path    Request path, signed as given
//   -body    Optional JSON body

package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/chainsafe/rwa-bridge/pkg/auth"
)

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "Bridge service URL")
	keyHex := flag.String("key", "", "Caller private key (hex)")
	method := flag.String("method", http.MethodGet, "HTTP method")
	path := flag.String("path", "/api/v1/bridges", "Request path")
	body := flag.String("body", "", "JSON request body")
	flag.Parse()

	key, err := crypto.HexToECDSA(strings.TrimPrefix(*keyHex, "0x"))
	if err != nil {
		fail("invalid key: %v", err)
	}

	req, err := http.NewRequest(strings.ToUpper(*method), strings.TrimRight(*baseURL, "/")+*path, bytes.NewBufferString(*body))
	if err != nil {
		fail("build request: %v", err)
	}
	if *body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if err := auth.SignRequest(req, key, time.Now()); err != nil {
		fail("sign request: %v", err)
	}

	fmt.Printf("%s %s as %s\n", req.Method, req.URL.Path, crypto.PubkeyToAddress(key.PublicKey).Hex())

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		fail("request failed: %v", err)
	}
	defer resp.Body.Close()

	out, _ := io.ReadAll(resp.Body)
	fmt.Printf("%s\n%s\n", resp.Status, out)
	if resp.StatusCode >= 300 {
		os.Exit(1)
	}
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
