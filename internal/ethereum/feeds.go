package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/RoeeEidan/Chain-Prices/internal/models"
)

// ErrNoToken is returned by TokenSupply for assets without an ERC20 contract.
var ErrNoToken = errors.New("asset has no token address")

// Caller is the read-only contract call primitive. *Client implements it.
type Caller interface {
	CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error)
}

// Round is the latest answer of a price feed.
type Round struct {
	Answer    *big.Int
	UpdatedAt uint64 // seconds since epoch
	Decimals  uint8
}

// Price returns Answer scaled down by Decimals.
func (r Round) Price() float64 { return Normalize(r.Answer, r.Decimals) }

// Supply is an ERC20 total supply in base units.
type Supply struct {
	Total    *big.Int
	Decimals uint8
}

func (s Supply) Amount() float64 { return Normalize(s.Total, s.Decimals) }

// FeedReader reads Chainlink feeds and ERC20 supplies. Each method issues its
// two contract calls concurrently and bounds them with the per-call timeout.
type FeedReader struct {
	caller  Caller
	feedABI abi.ABI
	ercABI  abi.ABI
	timeout time.Duration
}

func NewFeedReader(caller Caller, timeout time.Duration) (*FeedReader, error) {
	fABI, err := abi.JSON(aggregatorV3ABI())
	if err != nil {
		return nil, fmt.Errorf("parse aggregator ABI: %w", err)
	}
	eABI, err := abi.JSON(erc20ABI())
	if err != nil {
		return nil, fmt.Errorf("parse ERC20 ABI: %w", err)
	}
	return &FeedReader{caller: caller, feedABI: fABI, ercABI: eABI, timeout: timeout}, nil
}

func (f *FeedReader) LatestRound(ctx context.Context, asset models.Asset) (Round, error) {
	ctx, cancel := f.withTimeout(ctx)
	defer cancel()

	feed := common.HexToAddress(asset.PriceFeed)
	var round Round

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		out, err := f.call(gctx, f.feedABI, feed, "latestRoundData")
		if err != nil {
			return err
		}
		if len(out) < 4 {
			return fmt.Errorf("latestRoundData: expected 5 values, got %d", len(out))
		}
		answer, ok := out[1].(*big.Int)
		if !ok {
			return fmt.Errorf("latestRoundData: unexpected answer type %T", out[1])
		}
		updatedAt, ok := out[3].(*big.Int)
		if !ok {
			return fmt.Errorf("latestRoundData: unexpected updatedAt type %T", out[3])
		}
		if !updatedAt.IsUint64() {
			return fmt.Errorf("latestRoundData: updatedAt %s out of range", updatedAt)
		}
		round.Answer = answer
		round.UpdatedAt = updatedAt.Uint64()
		return nil
	})
	g.Go(func() error {
		dec, err := f.decimals(gctx, f.feedABI, feed)
		round.Decimals = dec
		return err
	})
	if err := g.Wait(); err != nil {
		return Round{}, fmt.Errorf("feed %s: %w", asset.ID, err)
	}
	return round, nil
}

func (f *FeedReader) TokenSupply(ctx context.Context, asset models.Asset) (Supply, error) {
	if !asset.HasToken() {
		return Supply{}, ErrNoToken
	}
	ctx, cancel := f.withTimeout(ctx)
	defer cancel()

	token := common.HexToAddress(asset.Token)
	var supply Supply

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		out, err := f.call(gctx, f.ercABI, token, "totalSupply")
		if err != nil {
			return err
		}
		total, ok := out[0].(*big.Int)
		if !ok {
			return fmt.Errorf("totalSupply: unexpected type %T", out[0])
		}
		supply.Total = total
		return nil
	})
	g.Go(func() error {
		dec, err := f.decimals(gctx, f.ercABI, token)
		supply.Decimals = dec
		return err
	})
	if err := g.Wait(); err != nil {
		return Supply{}, fmt.Errorf("token %s: %w", asset.ID, err)
	}
	return supply, nil
}

func (f *FeedReader) decimals(ctx context.Context, contract abi.ABI, to common.Address) (uint8, error) {
	out, err := f.call(ctx, contract, to, "decimals")
	if err != nil {
		return 0, err
	}
	dec, ok := out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("decimals: unexpected type %T", out[0])
	}
	return dec, nil
}

func (f *FeedReader) call(ctx context.Context, contract abi.ABI, to common.Address, method string) ([]interface{}, error) {
	data, err := contract.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	raw, err := f.caller.CallContract(ctx, to, data)
	if err != nil {
		return nil, fmt.Errorf("%s call: %w", method, err)
	}
	out, err := contract.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: empty result", method)
	}
	return out, nil
}

func (f *FeedReader) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if f.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, f.timeout)
}

// Normalize converts an integer amount with the given decimals into a float,
// e.g. 300000000000 with 8 decimals is 3000.
func Normalize(v *big.Int, decimals uint8) float64 {
	if v == nil {
		return 0
	}
	return decimal.NewFromBigInt(v, -int32(decimals)).InexactFloat64()
}
