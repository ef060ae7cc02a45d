package contracts

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// TokenABI is the ERC-20 subset the portal uses.
const TokenABI = `[
	{"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"name":"spender","type":"address"},{"name":"value","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"},
	{"anonymous":false,"inputs":[{"indexed":true,"name":"from","type":"address"},{"indexed":true,"name":"to","type":"address"},{"indexed":false,"name":"value","type":"uint256"}],"name":"Transfer","type":"event"},
	{"anonymous":false,"inputs":[{"indexed":true,"name":"owner","type":"address"},{"indexed":true,"name":"spender","type":"address"},{"indexed":false,"name":"value","type":"uint256"}],"name":"Approval","type":"event"}
]`

// FundABI covers subscription requests on a fund.
const FundABI = `[
	{"inputs":[],"name":"isSubscribeAllowed","outputs":[{"name":"","type":"bool"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"giveQuantity","type":"uint256"},{"name":"shareQuantity","type":"uint256"},{"name":"incentiveQuantity","type":"uint256"}],"name":"requestSubscription","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"name":"","type":"uint256"}],"name":"requests","outputs":[
		{"name":"participant","type":"address"},
		{"name":"status","type":"uint8"},
		{"name":"requestType","type":"uint8"},
		{"name":"shareQuantity","type":"uint256"},
		{"name":"giveQuantity","type":"uint256"},
		{"name":"receiveQuantity","type":"uint256"},
		{"name":"incentiveQuantity","type":"uint256"},
		{"name":"lastDataFeedUpdateId","type":"uint256"},
		{"name":"lastDataFeedUpdateTime","type":"uint256"},
		{"name":"timestamp","type":"uint256"}
	],"stateMutability":"view","type":"function"},
	{"anonymous":false,"inputs":[{"indexed":false,"name":"id","type":"uint256"}],"name":"RequestUpdated","type":"event"}
]`

// DataFeedABI is the validity check of the price feed.
const DataFeedABI = `[
	{"inputs":[{"name":"ofAsset","type":"address"}],"name":"isValid","outputs":[{"name":"","type":"bool"}],"stateMutability":"view","type":"function"}
]`

var (
	tokenABI    = mustParse(TokenABI)
	fundABI     = mustParse(FundABI)
	dataFeedABI = mustParse(DataFeedABI)
)

func mustParse(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic("contracts: invalid ABI: " + err.Error())
	}
	return parsed
}

// ParsedTokenABI returns the parsed ERC-20 ABI.
func ParsedTokenABI() abi.ABI { return tokenABI }

// ParsedFundABI returns the parsed fund ABI.
func ParsedFundABI() abi.ABI { return fundABI }

// ParsedDataFeedABI returns the parsed data feed ABI.
func ParsedDataFeedABI() abi.ABI { return dataFeedABI }
