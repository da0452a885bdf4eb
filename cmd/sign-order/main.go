// Command sign-order composes and signs an order offline and prints the
// wire record, the canonical payload it was signed over and, for EC keys,
// the recovered signer.
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/uhyunpark/hibachi/pkg/batch"
	"github.com/uhyunpark/hibachi/pkg/composer"
	"github.com/uhyunpark/hibachi/pkg/crypto"
	"github.com/uhyunpark/hibachi/pkg/numeric"
	"github.com/uhyunpark/hibachi/pkg/sandbox"
	"github.com/uhyunpark/hibachi/pkg/transaction"
	"github.com/uhyunpark/hibachi/pkg/types"
	"github.com/uhyunpark/hibachi/pkg/util"
)

func main() {
	var (
		key        = flag.String("key", "", "0x private key or HMAC secret (a fresh EC key when empty)")
		accountID  = flag.Uint64("account", 0, "account id stamped on the record")
		symbol     = flag.String("symbol", "BTC/USDT-P", "contract symbol")
		side       = flag.String("side", "BID", "BID, ASK, BUY or SELL")
		quantity   = flag.String("qty", "0.001", "order quantity")
		price      = flag.String("price", "", "limit price (market order when empty)")
		maxFees    = flag.String("max-fees", "0.0005", "max fees percent")
		takeProfit = flag.String("tp", "", "take profit trigger price")
		stopLoss   = flag.String("sl", "", "stop loss trigger price")
		contracts  = flag.String("contracts", "", "contracts YAML (built-in table when empty)")
		publicKey  = flag.String("public-key", "", "expected signer as a 65-byte public key or 20-byte address (the key's own address when empty)")
	)
	flag.Parse()

	cred, address := loadKey(*key)
	if *publicKey != "" && address != "" {
		derived, err := crypto.AddressFromKeyHex(*publicKey)
		if err != nil {
			fail("public key", err)
		}
		address = derived
	}
	registry := loadContracts(*contracts)

	intent := types.OrderIntent{
		Symbol:         *symbol,
		Side:           types.Side(*side),
		Quantity:       mustDecimal("qty", *quantity),
		MaxFeesPercent: mustDecimal("max-fees", *maxFees),
		Price:          optionalDecimal("price", *price),
	}
	if tp := optionalDecimal("tp", *takeProfit); tp != nil {
		intent.TPSL = append(intent.TPSL, types.TPSLLeg{Kind: types.TakeProfit, Price: *tp})
	}
	if sl := optionalDecimal("sl", *stopLoss); sl != nil {
		intent.TPSL = append(intent.TPSL, types.TPSLLeg{Kind: types.StopLoss, Price: *sl})
	}

	clock := util.RealClock{}
	nonce := util.Nonce(clock)
	actions, err := composer.ComposeCreate(intent, nonce, clock.Now())
	if err != nil {
		fail("compose", err)
	}

	fmt.Println("Order Details:")
	fmt.Printf("  Symbol: %s\n", intent.Symbol)
	fmt.Printf("  Side: %s\n", intent.Side)
	fmt.Printf("  Quantity: %s\n", numeric.Format(intent.Quantity))
	fmt.Printf("  Price: %s\n", numeric.FormatOptional(intent.Price))
	fmt.Printf("  Nonce: %d\n", nonce)
	fmt.Printf("  Scheme: %s\n\n", cred.Scheme())

	if len(actions) > 1 {
		req, err := batch.Assemble(*accountID, nonce, actions, cred, registry)
		if err != nil {
			fail("assemble batch", err)
		}
		printJSON("Signed Batch (POST /trade/orders):", req)
		return
	}

	rec, err := actions[0].(transaction.CreateOrder).Build(nonce, registry, cred)
	if err != nil {
		fail("sign", err)
	}
	rec.AccountID = *accountID
	printJSON("Signed Order (POST /trade/order):", rec)

	raw, err := transaction.NewVerifier(registry).PlacePayload(rec)
	if err != nil {
		fail("rebuild payload", err)
	}
	fmt.Printf("Payload (%d bytes): %s\n\n", len(raw), hex.EncodeToString(raw))

	if address == "" {
		return
	}
	fmt.Println("Verifying signature...")
	recovered, err := crypto.RecoverSigner(raw, rec.Signature)
	if err != nil {
		fail("recover", err)
	}
	fmt.Printf("  Signer: %s\n", recovered.Hex())
	fmt.Printf("  Expected: %s\n", address)
	fmt.Printf("  Matches: %v\n", strings.EqualFold(recovered.Hex(), address))
}

func loadKey(key string) (crypto.Credential, string) {
	if key == "" {
		fmt.Println("Generating new keypair...")
		signer, err := crypto.GenerateKey()
		if err != nil {
			fail("generate key", err)
		}
		fmt.Printf("Address: %s\n", signer.Address().Hex())
		fmt.Printf("Private Key: %s (KEEP SECRET!)\n\n", signer.PrivateKeyHex())
		return signer, signer.Address().Hex()
	}
	cred, err := crypto.NewCredential(key)
	if err != nil {
		fail("load key", err)
	}
	if ec, ok := cred.(*crypto.ECSigner); ok {
		return ec, ec.Address().Hex()
	}
	return cred, ""
}

func loadContracts(path string) *types.ContractRegistry {
	seed := sandbox.DefaultSeed()
	if path != "" {
		var err error
		if seed, err = sandbox.LoadSeed(path); err != nil {
			fail("load contracts", err)
		}
	}
	info, err := seed.ExchangeInfo()
	if err != nil {
		fail("contracts", err)
	}
	registry := types.NewContractRegistry()
	registry.Replace(info.FutureContracts)
	return registry
}

func mustDecimal(name, v string) decimal.Decimal {
	d, err := numeric.Parse(v)
	if err != nil {
		fail(name, err)
	}
	return d
}

func optionalDecimal(name, v string) *decimal.Decimal {
	if v == "" {
		return nil
	}
	d := mustDecimal(name, v)
	return &d
}

func printJSON(title string, v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fail("marshal", err)
	}
	fmt.Println(title)
	fmt.Println(string(out))
	fmt.Println()
}

func fail(step string, err error) {
	fmt.Fprintf(os.Stderr, "Error (%s): %v\n", step, err)
	os.Exit(1)
}
