package feed

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"

	"rateoracle/internal/oracle"
)

const (
	feedABIJSON = `[
{"inputs":[{"internalType":"bytes32","name":"feedId","type":"bytes32"}],"name":"queryRate","outputs":[{"internalType":"uint256","name":"rate","type":"uint256"},{"internalType":"uint256","name":"timestamp","type":"uint256"}],"stateMutability":"view","type":"function"},
{"inputs":[{"internalType":"bytes32","name":"feedId","type":"bytes32"}],"name":"queryReportCount","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`
)

var (
	feedABI abi.ABI
)

func init() {
	parsed, err := abi.JSON(strings.NewReader(feedABIJSON))
	if err != nil {
		panic("failed to parse feed ABI: " + err.Error())
	}
	feedABI = parsed
}

// ContractCaller is the slice of ethclient.Client the on-chain feed needs.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// OnChainOptions parameterise the on-chain feed client.
type OnChainOptions struct {
	RPCURL      string
	FeedAddress string
	Timeout     time.Duration
}

// OnChain reads rates from the feed contract through Ethereum JSON-RPC.
type OnChain struct {
	opts      OnChainOptions
	logger    zerolog.Logger
	caller    ContractCaller
	clientMux sync.Mutex
}

// NewOnChain builds an on-chain feed client; the RPC connection is dialled lazily.
func NewOnChain(opts OnChainOptions, logger zerolog.Logger) *OnChain {
	return &OnChain{opts: opts, logger: logger.With().Str("component", "onchain_feed").Logger()}
}

// NewOnChainWithCaller builds a client over an existing contract caller.
func NewOnChainWithCaller(opts OnChainOptions, caller ContractCaller, logger zerolog.Logger) *OnChain {
	o := NewOnChain(opts, logger)
	o.caller = caller
	return o
}

// QueryRate calls queryRate(feedId) and returns the 24-decimal rate and its timestamp.
func (o *OnChain) QueryRate(ctx context.Context, id oracle.FeedID) (oracle.Report, error) {
	outputs, err := o.call(ctx, "queryRate", id)
	if err != nil {
		return oracle.Report{}, err
	}
	if len(outputs) != 2 {
		return oracle.Report{}, errors.New("unexpected queryRate response")
	}

	rate, err := toUint256(outputs[0])
	if err != nil {
		return oracle.Report{}, fmt.Errorf("decode rate: %w", err)
	}
	ts, ok := outputs[1].(*big.Int)
	if !ok || !ts.IsInt64() {
		return oracle.Report{}, errors.New("failed to decode queryRate timestamp")
	}

	return oracle.Report{Rate: rate, UpdatedAt: time.Unix(ts.Int64(), 0).UTC()}, nil
}

// QueryReportCount calls queryReportCount(feedId).
func (o *OnChain) QueryReportCount(ctx context.Context, id oracle.FeedID) (uint64, error) {
	outputs, err := o.call(ctx, "queryReportCount", id)
	if err != nil {
		return 0, err
	}
	if len(outputs) != 1 {
		return 0, errors.New("unexpected queryReportCount response")
	}
	count, ok := outputs[0].(*big.Int)
	if !ok || !count.IsUint64() {
		return 0, errors.New("failed to decode queryReportCount output")
	}
	return count.Uint64(), nil
}

func (o *OnChain) call(ctx context.Context, method string, id oracle.FeedID) ([]interface{}, error) {
	if o.opts.FeedAddress == "" {
		return nil, errors.New("feed contract address not configured")
	}
	if !common.IsHexAddress(o.opts.FeedAddress) {
		return nil, fmt.Errorf("invalid feed contract address %q", o.opts.FeedAddress)
	}

	timeout := o.opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	var cancel context.CancelFunc
	ctx, cancel = context.WithTimeout(ctx, timeout)
	defer cancel()

	caller, err := o.getCaller(ctx)
	if err != nil {
		return nil, err
	}

	addr := common.HexToAddress(o.opts.FeedAddress)
	payload, err := feedABI.Pack(method, [32]byte(id))
	if err != nil {
		return nil, err
	}

	res, err := caller.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: payload}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}

	outputs, err := feedABI.Unpack(method, res)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}

	o.logger.Debug().Str("method", method).Str("feed_id", id.Hex()).Msg("feed contract called")
	return outputs, nil
}

func (o *OnChain) getCaller(ctx context.Context) (ContractCaller, error) {
	o.clientMux.Lock()
	defer o.clientMux.Unlock()

	if o.caller != nil {
		return o.caller, nil
	}
	if o.opts.RPCURL == "" {
		return nil, errors.New("ethereum rpc url not configured")
	}

	client, err := ethclient.DialContext(ctx, o.opts.RPCURL)
	if err != nil {
		return nil, err
	}
	o.caller = client
	return client, nil
}

func toUint256(v interface{}) (*uint256.Int, error) {
	b, ok := v.(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected type %T", v)
	}
	if b.Sign() < 0 {
		return nil, errors.New("negative value")
	}
	out, overflow := uint256.FromBig(b)
	if overflow {
		return nil, errors.New("value exceeds 256 bits")
	}
	return out, nil
}

var _ oracle.FeedClient = (*OnChain)(nil)
