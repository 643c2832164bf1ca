package ethereum

import (
	"io"
	"strings"
)

// Minimal ABIs for Chainlink AggregatorV3 and ERC20, only the views we call.

func aggregatorV3ABI() io.Reader {
	return strings.NewReader(`[
		{
			"name": "decimals",
			"type": "function",
			"stateMutability": "view",
			"inputs": [],
			"outputs": [{"name": "", "type": "uint8"}]
		},
		{
			"name": "latestRoundData",
			"type": "function",
			"stateMutability": "view",
			"inputs": [],
			"outputs": [
				{"name": "roundId",         "type": "uint80"},
				{"name": "answer",          "type": "int256"},
				{"name": "startedAt",       "type": "uint256"},
				{"name": "updatedAt",       "type": "uint256"},
				{"name": "answeredInRound", "type": "uint80"}
			]
		}
	]`)
}

func erc20ABI() io.Reader {
	return strings.NewReader(`[
		{
			"name": "decimals",
			"type": "function",
			"stateMutability": "view",
			"inputs": [],
			"outputs": [{"name": "", "type": "uint8"}]
		},
		{
			"name": "totalSupply",
			"type": "function",
			"stateMutability": "view",
			"inputs": [],
			"outputs": [{"name": "", "type": "uint256"}]
		}
	]`)
}
