package main

import (
	"testing"

	"github.com/uhyunpark/hibachi/params"
	"github.com/uhyunpark/hibachi/pkg/crypto"
)

const testKey = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestConfiguredAccount(t *testing.T) {
	signer, err := crypto.FromPrivateKeyHex(testKey)
	if err != nil {
		t.Fatalf("load key: %v", err)
	}
	other, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}

	tests := []struct {
		name    string
		account params.Account
		ok      bool
		wantErr bool
	}{
		{"public key only", params.Account{AccountID: 1, APIKey: "k", PublicKey: signer.PublicKeyHex()}, true, false},
		{"private key", params.Account{AccountID: 1, APIKey: "k", PrivateKey: testKey}, true, false},
		{"matching pair", params.Account{AccountID: 1, APIKey: "k", PrivateKey: testKey, PublicKey: signer.PublicKeyHex()}, true, false},
		{"mismatched pair", params.Account{AccountID: 1, APIKey: "k", PrivateKey: testKey, PublicKey: other.PublicKeyHex()}, true, true},
		{"no keys", params.Account{AccountID: 1, APIKey: "k"}, false, false},
		{"no api key", params.Account{AccountID: 1, PrivateKey: testKey}, false, false},
	}
	for _, tt := range tests {
		seed, ok := configuredAccount(tt.account)
		if ok != tt.ok {
			t.Errorf("%s: ok = %v, want %v", tt.name, ok, tt.ok)
			continue
		}
		if !ok {
			continue
		}
		acct, err := seed.Account()
		if tt.wantErr {
			if err == nil {
				t.Errorf("%s: expected error", tt.name)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s: Account: %v", tt.name, err)
			continue
		}
		if acct.Key.Address != signer.Address() {
			t.Errorf("%s: address = %s, want %s", tt.name, acct.Key.Address.Hex(), signer.Address().Hex())
		}
	}

	seed, ok := configuredAccount(params.Account{AccountID: 2, APIKey: "k", PrivateKey: "s3cret", PublicKey: signer.PublicKeyHex()})
	if !ok || seed.HMACSecret != "s3cret" || seed.PublicKey != "" {
		t.Errorf("hmac seed = %+v, %v", seed, ok)
	}
	if _, err := seed.Account(); err != nil {
		t.Errorf("hmac Account: %v", err)
	}
}
