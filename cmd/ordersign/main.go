package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/GoPolymarket/itemsale/internal/config"
	"github.com/GoPolymarket/itemsale/internal/model"
	"github.com/GoPolymarket/itemsale/internal/signer"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"golang.org/x/term"
)

// ordersign countersigns a paid or free order and prints the request body the
// buyer submits to /v1/purchases or /v1/purchases/free.
func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "ordersign:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	fs := flag.NewFlagSet("ordersign", flag.ContinueOnError)
	kind := fs.String("kind", "paid", "order kind: paid or free")
	orderID := fs.String("order", "", "order id (decimal)")
	buyer := fs.String("buyer", "", "buyer address")
	items := fs.String("items", "", "comma separated item ids")
	asset := fs.String("asset", "", "payment asset address; empty for native")
	amount := fs.String("amount", "0", "payment amount in base units")
	minRevenue := fs.String("min-revenue", "0", "minimum reference revenue")
	expires := fs.String("expires", "15m", "expiry as unix seconds or a duration from now")
	chainID := fs.Int64("chain-id", cfg.Chain.ChainID, "EIP-712 domain chain id")
	engine := fs.String("engine", cfg.Chain.EngineAddress, "EIP-712 verifying contract")
	typed := fs.Bool("typed", false, "also print the EIP-712 typed data")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if !common.IsHexAddress(*engine) {
		return fmt.Errorf("invalid engine address %q", *engine)
	}
	codec := signer.NewCodec(*chainID, common.HexToAddress(*engine))
	key, err := signerKey(cfg.Sale.SignerKey)
	if err != nil {
		return err
	}
	s, err := signer.NewSigner(key, codec)
	if err != nil {
		return err
	}

	id, ok := new(big.Int).SetString(*orderID, 10)
	if !ok || id.Sign() < 0 {
		return fmt.Errorf("invalid order id %q", *orderID)
	}
	if !common.IsHexAddress(*buyer) {
		return fmt.Errorf("invalid buyer address %q", *buyer)
	}
	itemIDs, err := parseItems(*items)
	if err != nil {
		return err
	}
	expiresAt, err := parseExpiry(*expires, time.Now())
	if err != nil {
		return err
	}

	var out struct {
		Signer    common.Address `json:"signer"`
		Digest    common.Hash    `json:"digest"`
		Request   any            `json:"request"`
		TypedData any            `json:"typed_data,omitempty"`
	}
	out.Signer = s.Address()

	switch *kind {
	case "paid":
		order := &signer.PaidOrder{
			OrderID:   id,
			Buyer:     common.HexToAddress(*buyer),
			ItemIDs:   itemIDs,
			ExpiresAt: expiresAt,
		}
		if *asset != "" {
			if !common.IsHexAddress(*asset) {
				return fmt.Errorf("invalid asset address %q", *asset)
			}
			order.PaymentAsset = common.HexToAddress(*asset)
		}
		if order.Amount, err = parseAmount("amount", *amount); err != nil {
			return err
		}
		if order.MinRevenue, err = parseAmount("min-revenue", *minRevenue); err != nil {
			return err
		}
		sig, err := s.SignPaid(order)
		if err != nil {
			return err
		}
		out.Digest = codec.DigestPaid(order)
		out.Request = model.PurchaseRequest{
			OrderID:      id.String(),
			ItemIDs:      itemStrings(itemIDs),
			PaymentAsset: *asset,
			Amount:       order.Amount.String(),
			MinRevenue:   order.MinRevenue.String(),
			ExpiresAt:    expiresAt.String(),
			Signature:    hexutil.Encode(sig),
		}
		if *typed {
			out.TypedData = codec.BuildPaidTypedData(order)
		}
	case "free":
		order := &signer.FreeOrder{
			OrderID:   id,
			Buyer:     common.HexToAddress(*buyer),
			ItemIDs:   itemIDs,
			ExpiresAt: expiresAt,
		}
		sig, err := s.SignFree(order)
		if err != nil {
			return err
		}
		out.Digest = codec.DigestFree(order)
		out.Request = model.FreePurchaseRequest{
			OrderID:   id.String(),
			ItemIDs:   itemStrings(itemIDs),
			ExpiresAt: expiresAt.String(),
			Signature: hexutil.Encode(sig),
		}
		if *typed {
			out.TypedData = codec.BuildFreeTypedData(order)
		}
	default:
		return fmt.Errorf("unknown kind %q", *kind)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// signerKey prefers the configured key (ITEMSALE_SALE_SIGNER_KEY) and
// otherwise prompts on the terminal.
func signerKey(configured string) (string, error) {
	key := strings.TrimSpace(configured)
	if key == "" {
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			return "", errors.New("signer key required; set ITEMSALE_SALE_SIGNER_KEY or run interactively")
		}
		fmt.Fprint(os.Stderr, "Enter signer private key: ")
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("read signer key: %w", err)
		}
		key = strings.TrimSpace(string(raw))
	}
	return strings.TrimPrefix(strings.TrimPrefix(key, "0x"), "0X"), nil
}

func parseItems(raw string) ([]*big.Int, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, errors.New("at least one item id is required")
	}
	parts := strings.Split(raw, ",")
	out := make([]*big.Int, 0, len(parts))
	for _, p := range parts {
		v, ok := new(big.Int).SetString(strings.TrimSpace(p), 10)
		if !ok || v.Sign() < 0 {
			return nil, fmt.Errorf("invalid item id %q", p)
		}
		out = append(out, v)
	}
	return out, nil
}

func parseAmount(name, raw string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("invalid %s %q", name, raw)
	}
	return v, nil
}

// parseExpiry accepts absolute unix seconds or a duration relative to now.
func parseExpiry(raw string, now time.Time) (*big.Int, error) {
	if unix, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return big.NewInt(unix), nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid expiry %q", raw)
	}
	return big.NewInt(now.Add(d).Unix()), nil
}

func itemStrings(ids []*big.Int) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
