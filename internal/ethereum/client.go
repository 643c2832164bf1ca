package ethereum

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/RoeeEidan/Chain-Prices/internal/httputil"
)

// Client is a read-only JSON-RPC client. HTTP endpoints go through the
// retrying transport; ws/ipc endpoints use go-ethereum's defaults.
type Client struct {
	rpc *ethclient.Client
}

func NewClient(ctx context.Context, rpcURL string, timeout time.Duration) (*Client, error) {
	httpClient := httputil.NewClient(timeout, httputil.DefaultRetry)

	rc, err := rpc.DialOptions(ctx, rpcURL, rpc.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("dial RPC: %w", err)
	}
	return &Client{rpc: ethclient.NewClient(rc)}, nil
}

func (c *Client) Close() { c.rpc.Close() }

func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	return c.rpc.ChainID(ctx)
}

// CallContract performs a read-only eth_call against the latest block and returns the raw result.
func (c *Client) CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	msg := map[string]interface{}{
		"to":   to.Hex(),
		"data": fmt.Sprintf("0x%x", data),
	}
	var result string
	err := c.rpc.Client().CallContext(ctx, &result, "eth_call", msg, "latest")
	if err != nil {
		return nil, err
	}
	return common.FromHex(result), nil
}
