package sandbox

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/uhyunpark/hibachi/pkg/batch"
	"github.com/uhyunpark/hibachi/pkg/crypto"
	"github.com/uhyunpark/hibachi/pkg/storage"
	"github.com/uhyunpark/hibachi/pkg/transaction"
	"github.com/uhyunpark/hibachi/pkg/types"
	"github.com/uhyunpark/hibachi/pkg/util"
)

const (
	testKey     = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	testAPIKey  = "sandbox-key"
	testAccount = 7
)

var testNow = time.Unix(1700000000, 0)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }
func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

type fixture struct {
	ex        *Exchange
	signer    *crypto.ECSigner
	acct      Account
	contracts *types.ContractRegistry
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store, err := storage.NewMemStore()
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	signer, err := crypto.FromPrivateKeyHex(testKey)
	if err != nil {
		t.Fatalf("load key: %v", err)
	}
	seed := DefaultSeed()
	seed.Accounts = []AccountSeed{{AccountID: testAccount, APIKey: testAPIKey, Address: signer.Address().Hex()}}

	ex, err := NewExchange(seed, store, WithClock(util.FixedClock{T: testNow}))
	if err != nil {
		t.Fatalf("NewExchange: %v", err)
	}
	acct, ok := ex.Authenticate(testAPIKey)
	if !ok {
		t.Fatal("seeded account not found")
	}

	info, _ := seed.ExchangeInfo()
	contracts := types.NewContractRegistry()
	contracts.Replace(info.FutureContracts)
	return fixture{ex: ex, signer: signer, acct: acct, contracts: contracts}
}

func (f fixture) place(t *testing.T, o transaction.CreateOrder, nonce uint64) transaction.PlaceRecord {
	t.Helper()
	rec, err := o.Build(nonce, f.contracts, f.signer)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	rec.AccountID = testAccount
	return rec
}

func limitBid(qty, price string) transaction.CreateOrder {
	return transaction.CreateOrder{
		Symbol:         "BTC/USDT-P",
		Side:           types.SideBid,
		Quantity:       dec(qty),
		MaxFeesPercent: dec("0.0005"),
		Price:          decPtr(price),
	}
}

func rejectionCode(t *testing.T, err error) int {
	t.Helper()
	var r *Rejection
	if !errors.As(err, &r) {
		t.Fatalf("error %v is not a rejection", err)
	}
	return r.Code
}

func TestParseSeed(t *testing.T) {
	seed, err := ParseSeed([]byte(`
fees:
  withdrawalFees: "1"
  instantWithdrawalFees:
    - ["100", "5"]
    - ["0", "10"]
contracts:
  - id: 2
    symbol: BTC/USDT-P
    underlyingSymbol: BTC
    underlyingDecimals: 10
    settlementSymbol: USDT
    settlementDecimals: 6
    tickSize: "0.000001"
accounts:
  - accountId: 9
    apiKey: k
    hmacSecret: s3cret
`))
	if err != nil {
		t.Fatalf("ParseSeed: %v", err)
	}
	if seed.Status != types.ExchangeNormal {
		t.Errorf("status = %q, want NORMAL", seed.Status)
	}

	info, err := seed.ExchangeInfo()
	if err != nil {
		t.Fatalf("ExchangeInfo: %v", err)
	}
	if len(info.FutureContracts) != 1 || info.FutureContracts[0].UnderlyingDecimals != 10 {
		t.Errorf("contracts = %+v", info.FutureContracts)
	}
	if !info.FutureContracts[0].TickSize.Equal(dec("0.000001")) {
		t.Errorf("tick size = %s", info.FutureContracts[0].TickSize)
	}
	if fee, _ := info.WithdrawalFee(dec("150")); !fee.Equal(dec("5")) {
		t.Errorf("withdrawal fee = %s, want 5", fee)
	}

	acct, err := seed.Accounts[0].Account()
	if err != nil {
		t.Fatalf("Account: %v", err)
	}
	if acct.ID != 9 || acct.Key.HMACSecret != "s3cret" {
		t.Errorf("account = %+v", acct)
	}
}

func TestAccountSeedRejects(t *testing.T) {
	for name, as := range map[string]AccountSeed{
		"no api key":   {AccountID: 1, HMACSecret: "s"},
		"bad address":  {AccountID: 1, APIKey: "k", Address: "0x1234"},
		"both keys":    {AccountID: 1, APIKey: "k", Address: "0x00000000000000000000000000000000000000aa", HMACSecret: "s"},
		"no key":       {AccountID: 1, APIKey: "k"},
		"short pub":    {AccountID: 1, APIKey: "k", PublicKey: "0x04abcd"},
		"pub and hmac": {AccountID: 1, APIKey: "k", PublicKey: "0x00000000000000000000000000000000000000aa", HMACSecret: "s"},
	} {
		if _, err := as.Account(); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestAccountSeedPublicKey(t *testing.T) {
	signer, err := crypto.FromPrivateKeyHex(testKey)
	if err != nil {
		t.Fatalf("load key: %v", err)
	}

	for name, as := range map[string]AccountSeed{
		"uncompressed key": {AccountID: testAccount, APIKey: testAPIKey, PublicKey: signer.PublicKeyHex()},
		"address as key":   {AccountID: testAccount, APIKey: testAPIKey, PublicKey: strings.ToLower(signer.Address().Hex())},
		"key with address": {AccountID: testAccount, APIKey: testAPIKey, PublicKey: "0x" + signer.PublicKeyHex(), Address: signer.Address().Hex()},
	} {
		acct, err := as.Account()
		if err != nil {
			t.Errorf("%s: Account: %v", name, err)
			continue
		}
		if acct.Key.Address != signer.Address() {
			t.Errorf("%s: address = %s, want %s", name, acct.Key.Address.Hex(), signer.Address().Hex())
		}
	}

	mismatch := AccountSeed{AccountID: 1, APIKey: "k", PublicKey: signer.PublicKeyHex(), Address: "0x00000000000000000000000000000000000000aa"}
	if _, err := mismatch.Account(); err == nil || !strings.Contains(err.Error(), "does not match") {
		t.Errorf("mismatched address: %v", err)
	}

	store, err := storage.NewMemStore()
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()
	seed := DefaultSeed()
	seed.Accounts = []AccountSeed{{AccountID: testAccount, APIKey: testAPIKey, PublicKey: signer.PublicKeyHex()}}
	ex, err := NewExchange(seed, store, WithClock(util.FixedClock{T: testNow}))
	if err != nil {
		t.Fatalf("NewExchange: %v", err)
	}
	acct, _ := ex.Authenticate(testAPIKey)
	info, _ := seed.ExchangeInfo()
	contracts := types.NewContractRegistry()
	contracts.Replace(info.FutureContracts)
	rec, err := limitBid("1", "60000").Build(1, contracts, signer)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	rec.AccountID = testAccount
	if _, err := ex.Place(acct, rec); err != nil {
		t.Errorf("Place signed by public key account: %v", err)
	}
}

func TestPlaceLookupCancel(t *testing.T) {
	f := newFixture(t)
	rec := f.place(t, limitBid("0.5", "60000"), 1000)

	id, err := f.ex.Place(f.acct, rec)
	if err != nil {
		t.Fatalf("Place: %v", err)
	}

	order, err := f.ex.Order(f.acct, types.ByNonce(1000))
	if err != nil {
		t.Fatalf("Order: %v", err)
	}
	if uint64(order.OrderID) != id || order.Status != types.StatusPlaced || !order.Price.Equal(dec("60000")) {
		t.Errorf("order = %+v", order)
	}
	if order.ContractID == nil || *order.ContractID != 2 {
		t.Errorf("contract id = %v", order.ContractID)
	}

	cancel, err := transaction.CancelOrder{Target: types.ByOrderID(id)}.Build(f.signer)
	if err != nil {
		t.Fatalf("build cancel: %v", err)
	}
	cancelled, err := f.ex.Cancel(f.acct, cancel)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if cancelled.Status != types.StatusCancelled || cancelled.FinishTime == nil {
		t.Errorf("cancelled = %+v", cancelled)
	}

	if _, err := f.ex.Cancel(f.acct, cancel); rejectionCode(t, err) != CodeInvalidRequest {
		t.Errorf("second cancel: %v", err)
	}
	if pending, _ := f.ex.Pending(f.acct); len(pending) != 0 {
		t.Errorf("pending = %+v", pending)
	}
}

func TestPlaceStatuses(t *testing.T) {
	f := newFixture(t)

	market := limitBid("1", "1")
	market.Price = nil
	trigger := market
	trigger.TriggerPrice = decPtr("59000")
	trigger.TriggerDirection = types.TriggerLow
	twap := market
	twap.TWAP = &types.TWAPConfig{DurationMinutes: 10, QuantityMode: types.TWAPFixed}

	tests := []struct {
		name  string
		order transaction.CreateOrder
		want  types.OrderStatus
	}{
		{"limit", limitBid("1", "60000"), types.StatusPlaced},
		{"market fills", market, types.StatusFilled},
		{"trigger waits", trigger, types.StatusPending},
		{"twap", twap, types.StatusScheduledTWAP},
	}
	for i, tt := range tests {
		nonce := uint64(2000 + i)
		if _, err := f.ex.Place(f.acct, f.place(t, tt.order, nonce)); err != nil {
			t.Fatalf("%s: Place: %v", tt.name, err)
		}
		order, err := f.ex.Order(f.acct, types.ByNonce(nonce))
		if err != nil {
			t.Fatalf("%s: Order: %v", tt.name, err)
		}
		if order.Status != tt.want {
			t.Errorf("%s: status = %s, want %s", tt.name, order.Status, tt.want)
		}
	}
}

func TestExitOrderOnFilledParent(t *testing.T) {
	f := newFixture(t)
	parent := limitBid("1", "1")
	parent.Price = nil
	if _, err := f.ex.Place(f.acct, f.place(t, parent, 3000)); err != nil {
		t.Fatalf("Place parent: %v", err)
	}

	ref := types.ByNonce(3000)
	exit := transaction.CreateOrder{
		Symbol:           "BTC/USDT-P",
		Side:             types.SideAsk,
		Quantity:         dec("1"),
		MaxFeesPercent:   dec("0.0005"),
		TriggerPrice:     decPtr("65000"),
		TriggerDirection: types.TriggerHigh,
		Flags:            types.FlagReduceOnly,
		Parent:           &ref,
	}
	if _, err := f.ex.Place(f.acct, f.place(t, exit, 3001)); err != nil {
		t.Fatalf("Place exit: %v", err)
	}
	child, err := f.ex.Order(f.acct, types.ByNonce(3001))
	if err != nil {
		t.Fatalf("Order: %v", err)
	}
	if child.Status != types.StatusPending || child.Side != types.SideAsk || child.OrderFlags != types.FlagReduceOnly {
		t.Errorf("exit order = %+v", child)
	}

	plain := exit
	plain.Flags = ""
	if _, err := f.ex.Place(f.acct, f.place(t, plain, 3002)); rejectionCode(t, err) != CodeInvalidRequest {
		t.Errorf("non reduce-only child of filled parent: %v", err)
	}
}

func TestPlaceRejections(t *testing.T) {
	f := newFixture(t)
	if _, err := f.ex.Place(f.acct, f.place(t, limitBid("1", "60000"), 1)); err != nil {
		t.Fatalf("Place: %v", err)
	}

	other, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	forged, _ := limitBid("1", "60000").Build(2, f.contracts, other)
	forged.AccountID = testAccount

	tampered := f.place(t, limitBid("1", "60000"), 3)
	tampered.Quantity = "2"

	late := limitBid("1", "60000")
	deadline := testNow.Unix() - 1
	late.CreationDeadline = &deadline

	wrongAccount := f.place(t, limitBid("1", "60000"), 5)
	wrongAccount.AccountID = testAccount + 1

	orphan := limitBid("1", "60000")
	parent := types.ByNonce(424242)
	orphan.Parent = &parent

	tests := []struct {
		name string
		rec  transaction.PlaceRecord
		code int
	}{
		{"foreign key", forged, CodeInvalidSignature},
		{"tampered quantity", tampered, CodeInvalidSignature},
		{"reused nonce", f.place(t, limitBid("2", "60000"), 1), CodeNonceUsed},
		{"expired deadline", f.place(t, late, 4), CodeDeadlineExceeded},
		{"other account", wrongAccount, CodeForbidden},
		{"missing parent", f.place(t, orphan, 6), CodeOrderNotFound},
	}
	for _, tt := range tests {
		_, err := f.ex.Place(f.acct, tt.rec)
		if got := rejectionCode(t, err); got != tt.code {
			t.Errorf("%s: code = %d, want %d (%v)", tt.name, got, tt.code, err)
		}
	}
}

func TestModifyUpdatesOrder(t *testing.T) {
	f := newFixture(t)
	id, err := f.ex.Place(f.acct, f.place(t, limitBid("1", "60000"), 10))
	if err != nil {
		t.Fatalf("Place: %v", err)
	}

	upd := transaction.UpdateOrder{
		OrderID:        id,
		Symbol:         "BTC/USDT-P",
		Side:           types.SideBid,
		Quantity:       dec("2"),
		MaxFeesPercent: dec("0.0005"),
		Price:          decPtr("61000"),
	}
	rec, err := upd.Build(11, f.contracts, f.signer)
	if err != nil {
		t.Fatalf("build update: %v", err)
	}
	if err := f.ex.Modify(f.acct, rec); err != nil {
		t.Fatalf("Modify: %v", err)
	}

	order, _ := f.ex.Order(f.acct, types.ByOrderID(id))
	if !order.TotalQuantity.Equal(dec("2")) || !order.Price.Equal(dec("61000")) {
		t.Errorf("order after modify = %+v", order)
	}

	// signed for the other side, so the rebuilt payload differs
	upd.Side = types.SideAsk
	wrongSide, _ := upd.Build(12, f.contracts, f.signer)
	if err := f.ex.Modify(f.acct, wrongSide); rejectionCode(t, err) != CodeInvalidSignature {
		t.Errorf("wrong side: %v", err)
	}

	upd.Side = types.SideBid
	upd.TriggerPrice = decPtr("1")
	trig, _ := upd.Build(13, f.contracts, f.signer)
	if err := f.ex.Modify(f.acct, trig); rejectionCode(t, err) != CodeInvalidRequest {
		t.Errorf("trigger on plain order: %v", err)
	}

	// a rejected modify leaves its nonce unspent
	upd.TriggerPrice = nil
	upd.Quantity = dec("3")
	retry, _ := upd.Build(13, f.contracts, f.signer)
	if err := f.ex.Modify(f.acct, retry); err != nil {
		t.Fatalf("Modify with nonce of rejected request: %v", err)
	}
	if err := f.ex.Modify(f.acct, retry); rejectionCode(t, err) != CodeNonceUsed {
		t.Errorf("replayed modify: %v", err)
	}
}

func TestBatchOutcomes(t *testing.T) {
	f := newFixture(t)
	const base = 5000
	actions := []transaction.Action{
		limitBid("1", "60000"),
		transaction.UpdateOrder{OrderID: 1, Symbol: "BTC/USDT-P", Side: types.SideBid, Quantity: dec("3"), MaxFeesPercent: dec("0.0005"), Price: decPtr("60500")},
		transaction.CancelOrder{Target: types.ByNonce(base)},
		transaction.CancelOrder{Target: types.ByOrderID(999)},
	}
	req, err := batch.Assemble(testAccount, base, actions, f.signer, f.contracts)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	body, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var in transaction.InboundBatch
	if err := json.Unmarshal(body, &in); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	resp, err := f.ex.Batch(f.acct, in)
	if err != nil {
		t.Fatalf("Batch: %v", err)
	}
	out, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	resolved, err := batch.ResolveResponse(out)
	if err != nil {
		t.Fatalf("ResolveResponse: %v", err)
	}
	if len(resolved.Orders) != 4 {
		t.Fatalf("outcomes = %+v", resolved.Orders)
	}

	created, ok := resolved.Orders[0].(types.Created)
	if !ok || created.Nonce != base || created.OrderID != 1 || created.CreationTime != "1700000000" {
		t.Errorf("outcome[0] = %#v", resolved.Orders[0])
	}
	if u, ok := resolved.Orders[1].(types.Updated); !ok || u.OrderID != 1 {
		t.Errorf("outcome[1] = %#v", resolved.Orders[1])
	}
	if c, ok := resolved.Orders[2].(types.Cancelled); !ok || c.Nonce != base {
		t.Errorf("outcome[2] = %#v", resolved.Orders[2])
	}
	if failed, ok := resolved.Orders[3].(types.Failed); !ok || failed.ErrorCode != CodeOrderNotFound || failed.Status != "failed" {
		t.Errorf("outcome[3] = %#v", resolved.Orders[3])
	}
}

func TestCancelAllByContract(t *testing.T) {
	f := newFixture(t)
	eth := limitBid("1", "3000")
	eth.Symbol = "ETH/USDT-P"
	for i, o := range []transaction.CreateOrder{limitBid("1", "60000"), eth, limitBid("2", "59000")} {
		if _, err := f.ex.Place(f.acct, f.place(t, o, uint64(100+i))); err != nil {
			t.Fatalf("Place %d: %v", i, err)
		}
	}

	btc := uint32(2)
	req, err := transaction.BuildCancelAll(testAccount, 200, &btc, f.signer)
	if err != nil {
		t.Fatalf("BuildCancelAll: %v", err)
	}
	n, err := f.ex.CancelAll(f.acct, req)
	if err != nil {
		t.Fatalf("CancelAll: %v", err)
	}
	if n != 2 {
		t.Errorf("cancelled %d, want 2", n)
	}
	pending, _ := f.ex.Pending(f.acct)
	if len(pending) != 1 || pending[0].Symbol != "ETH/USDT-P" {
		t.Errorf("pending = %+v", pending)
	}

	if _, err := f.ex.CancelAll(f.acct, req); rejectionCode(t, err) != CodeNonceUsed {
		t.Errorf("replayed cancel all: %v", err)
	}
}

func TestWithdrawChecksFee(t *testing.T) {
	f := newFixture(t)
	w := transaction.Withdraw{
		Coin:     "USDT",
		Address:  "0x00000000000000000000000000000000000000aa",
		Quantity: dec("150"),
		MaxFees:  dec("4"),
	}
	low, err := w.Build(testAccount, f.contracts, f.signer)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if _, err := f.ex.Withdraw(f.acct, low); rejectionCode(t, err) != CodeInvalidRequest {
		t.Errorf("fee below tier: %v", err)
	}

	w.MaxFees = dec("5")
	enough, _ := w.Build(testAccount, f.contracts, f.signer)
	if _, err := f.ex.Withdraw(f.acct, enough); err != nil {
		t.Errorf("Withdraw: %v", err)
	}

	w.Quantity = dec("0")
	empty, err := w.Build(testAccount, f.contracts, f.signer)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	_, err = f.ex.Withdraw(f.acct, empty)
	if rejectionCode(t, err) != CodeInvalidRequest || !strings.Contains(err.Error(), "invalid quantity") {
		t.Errorf("zero quantity: %v", err)
	}
}

func TestTransferNonceIsSingleUse(t *testing.T) {
	f := newFixture(t)
	req, err := transaction.Transfer{
		Coin:           "USDT",
		DstPublicKey:   "0x00000000000000000000000000000000000000bb",
		Quantity:       dec("10"),
		MaxFeesPercent: dec("1"),
	}.Build(testAccount, 77, f.contracts, f.signer)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	status, err := f.ex.Transfer(f.acct, req)
	if err != nil || status != "success" {
		t.Fatalf("Transfer = %q, %v", status, err)
	}
	if _, err := f.ex.Transfer(f.acct, req); rejectionCode(t, err) != CodeNonceUsed {
		t.Errorf("replayed transfer: %v", err)
	}
}

func TestMaintenanceBlocksWrites(t *testing.T) {
	f := newFixture(t)
	f.ex.SetStatus(types.ExchangeUnscheduledMaintenance, nil)
	_, err := f.ex.Place(f.acct, f.place(t, limitBid("1", "60000"), 1))
	if rejectionCode(t, err) != CodeMaintenance {
		t.Errorf("place during maintenance: %v", err)
	}
	if err := f.ex.Info().CheckMaintenance(); err == nil {
		t.Error("exchange info does not report maintenance")
	}
}

func TestServerRoutes(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(NewServer(f.ex, nil).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/market/exchange-info")
	if err != nil {
		t.Fatalf("exchange info: %v", err)
	}
	var info types.ExchangeInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		t.Fatalf("decode info: %v", err)
	}
	resp.Body.Close()
	if len(info.FutureContracts) != 2 || info.Status != types.ExchangeNormal {
		t.Errorf("info = %+v", info)
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/trade/orders?accountId=7", nil)
	req.Header.Set("Authorization", "wrong")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("orders: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("bad key status = %d", resp.StatusCode)
	}

	body, _ := json.Marshal(f.place(t, limitBid("1", "60000"), 1))
	req, _ = http.NewRequest(http.MethodPost, srv.URL+"/trade/order", strings.NewReader(string(body)))
	req.Header.Set("Authorization", testAPIKey)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	var placed struct {
		OrderID types.FlexUint64 `json:"orderId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&placed); err != nil {
		t.Fatalf("decode place: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || placed.OrderID != 1 {
		t.Errorf("place = %d %+v", resp.StatusCode, placed)
	}
}

func TestJournalRecordsAcceptedRequests(t *testing.T) {
	store, err := storage.NewMemStore()
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()
	j := &memJournal{}
	signer, _ := crypto.FromPrivateKeyHex(testKey)
	seed := DefaultSeed()
	seed.Accounts = []AccountSeed{{AccountID: testAccount, APIKey: testAPIKey, Address: signer.Address().Hex()}}
	ex, err := NewExchange(seed, store, WithJournal(j), WithClock(util.FixedClock{T: testNow}))
	if err != nil {
		t.Fatalf("NewExchange: %v", err)
	}
	acct, _ := ex.Authenticate(testAPIKey)
	info, _ := seed.ExchangeInfo()
	contracts := types.NewContractRegistry()
	contracts.Replace(info.FutureContracts)

	rec, _ := limitBid("1", "60000").Build(1, contracts, signer)
	rec.AccountID = testAccount
	if _, err := ex.Place(acct, rec); err != nil {
		t.Fatalf("Place: %v", err)
	}
	rec.Nonce = 2
	_, _ = ex.Place(acct, rec) // signature no longer matches

	if len(j.lines) != 1 || !strings.Contains(j.lines[0], `"event":"ORDER_PLACE"`) {
		t.Errorf("journal = %v", j.lines)
	}
}

type memJournal struct{ lines []string }

func (j *memJournal) Append(line string) { j.lines = append(j.lines, line) }
