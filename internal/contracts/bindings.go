package contracts

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

// Token is a bound ERC-20 contract.
type Token struct {
	TokenInfo
	contract *bind.BoundContract
}

// Contract returns the underlying binding, used to submit transactions.
func (t *Token) Contract() *bind.BoundContract { return t.contract }

// ABI returns the token ABI, used to decode receipts.
func (t *Token) ABI() abi.ABI { return tokenABI }

func (t *Token) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	out, err := call(ctx, t.contract, "balanceOf", owner)
	if err != nil {
		return nil, err
	}
	return asBig(out, 0, "balanceOf")
}

func (t *Token) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	out, err := call(ctx, t.contract, "allowance", owner, spender)
	if err != nil {
		return nil, err
	}
	return asBig(out, 0, "allowance")
}

// Fund is a bound fund contract.
type Fund struct {
	Address  common.Address
	contract *bind.BoundContract
}

func (f *Fund) Contract() *bind.BoundContract { return f.contract }

func (f *Fund) ABI() abi.ABI { return fundABI }

func (f *Fund) IsSubscribeAllowed(ctx context.Context) (bool, error) {
	out, err := call(ctx, f.contract, "isSubscribeAllowed")
	if err != nil {
		return false, err
	}
	return asBool(out, 0, "isSubscribeAllowed")
}

// Request is a fund request as stored by requests(id).
type Request struct {
	Participant            common.Address
	Status                 uint8
	RequestType            uint8
	ShareQuantity          *big.Int
	GiveQuantity           *big.Int
	ReceiveQuantity        *big.Int
	IncentiveQuantity      *big.Int
	LastDataFeedUpdateID   *big.Int
	LastDataFeedUpdateTime *big.Int
	Timestamp              *big.Int
}

// Time returns the request timestamp.
func (r *Request) Time() time.Time {
	if r.Timestamp == nil {
		return time.Time{}
	}
	return time.Unix(r.Timestamp.Int64(), 0).UTC()
}

func (f *Fund) Requests(ctx context.Context, id *big.Int) (*Request, error) {
	out, err := call(ctx, f.contract, "requests", id)
	if err != nil {
		return nil, err
	}
	if len(out) != 10 {
		return nil, fmt.Errorf("requests: expected 10 fields, got %d", len(out))
	}
	participant, ok := out[0].(common.Address)
	if !ok {
		return nil, fmt.Errorf("requests: participant has type %T", out[0])
	}
	status, ok := out[1].(uint8)
	if !ok {
		return nil, fmt.Errorf("requests: status has type %T", out[1])
	}
	requestType, ok := out[2].(uint8)
	if !ok {
		return nil, fmt.Errorf("requests: requestType has type %T", out[2])
	}
	req := &Request{Participant: participant, Status: status, RequestType: requestType}
	fields := []**big.Int{
		&req.ShareQuantity, &req.GiveQuantity, &req.ReceiveQuantity, &req.IncentiveQuantity,
		&req.LastDataFeedUpdateID, &req.LastDataFeedUpdateTime, &req.Timestamp,
	}
	for i, dst := range fields {
		v, err := asBig(out, i+3, "requests")
		if err != nil {
			return nil, err
		}
		*dst = v
	}
	return req, nil
}

// DataFeed is a bound price feed contract.
type DataFeed struct {
	Address  common.Address
	contract *bind.BoundContract
}

func (d *DataFeed) IsValid(ctx context.Context, asset common.Address) (bool, error) {
	out, err := call(ctx, d.contract, "isValid", asset)
	if err != nil {
		return false, err
	}
	return asBool(out, 0, "isValid")
}

func call(ctx context.Context, c *bind.BoundContract, method string, params ...interface{}) ([]interface{}, error) {
	var out []interface{}
	if err := c.Call(&bind.CallOpts{Context: ctx}, &out, method, params...); err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	return out, nil
}

func asBig(out []interface{}, i int, method string) (*big.Int, error) {
	if len(out) <= i {
		return nil, fmt.Errorf("%s: missing output %d", method, i)
	}
	v, ok := out[i].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s: output %d has type %T", method, i, out[i])
	}
	return v, nil
}

func asBool(out []interface{}, i int, method string) (bool, error) {
	if len(out) <= i {
		return false, fmt.Errorf("%s: missing output %d", method, i)
	}
	v, ok := out[i].(bool)
	if !ok {
		return false, fmt.Errorf("%s: output %d has type %T", method, i, out[i])
	}
	return v, nil
}
