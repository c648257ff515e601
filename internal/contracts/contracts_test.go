package contracts

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend answers eth_call by ABI method name. Unimplemented methods panic
// through the embedded nil interface.
type fakeBackend struct {
	bind.ContractBackend
	abi     abi.ABI
	results map[string][]any
	calls   []string
}

func (f *fakeBackend) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	method, err := f.abi.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}
	f.calls = append(f.calls, method.Name)
	out, ok := f.results[method.Name]
	if !ok {
		return nil, errors.New("execution reverted")
	}
	return method.Outputs.Pack(out...)
}

func (f *fakeBackend) CodeAt(context.Context, common.Address, *big.Int) ([]byte, error) {
	return []byte{0x60}, nil
}

func TestSelectors(t *testing.T) {
	assert.Equal(t, "095ea7b3", common.Bytes2Hex(ERC20ABI.Methods["approve"].ID))
	assert.Equal(t, "70a08231", common.Bytes2Hex(ERC20ABI.Methods["balanceOf"].ID))
	assert.Equal(t, "dd62ed3e", common.Bytes2Hex(ERC20ABI.Methods["allowance"].ID))
	assert.Equal(t, "0902f1ac", common.Bytes2Hex(PairABI.Methods["getReserves"].ID))
	assert.Equal(t, "d06ca61f", common.Bytes2Hex(RouterABI.Methods["getAmountsOut"].ID))
	assert.Equal(t, "e6a43905", common.Bytes2Hex(FactoryABI.Methods["getPair"].ID))
}

func TestERC20Reads(t *testing.T) {
	backend := &fakeBackend{abi: ERC20ABI, results: map[string][]any{
		"allowance": {big.NewInt(500)},
		"balanceOf": {big.NewInt(42)},
	}}
	token := NewERC20(common.HexToAddress("0x01"), backend)
	owner := common.HexToAddress("0x02")

	allowance, err := token.Allowance(context.Background(), owner, common.HexToAddress("0x03"))
	require.NoError(t, err)
	assert.Equal(t, int64(500), allowance.Int64())

	balance, err := token.BalanceOf(context.Background(), owner)
	require.NoError(t, err)
	assert.Equal(t, int64(42), balance.Int64())
	assert.Equal(t, []string{"allowance", "balanceOf"}, backend.calls)
}

func TestERC20ReadError(t *testing.T) {
	backend := &fakeBackend{abi: ERC20ABI, results: map[string][]any{}}
	token := NewERC20(common.HexToAddress("0x01"), backend)

	_, err := token.BalanceOf(context.Background(), common.HexToAddress("0x02"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "balanceOf")
}

func TestPairGetReserves(t *testing.T) {
	backend := &fakeBackend{abi: PairABI, results: map[string][]any{
		"getReserves": {big.NewInt(1000), big.NewInt(2000), uint32(1700000000)},
	}}
	pair := NewPair(common.HexToAddress("0x10"), backend)

	reserves, err := pair.GetReserves(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1000), reserves.Reserve0.Int64())
	assert.Equal(t, int64(2000), reserves.Reserve1.Int64())
	assert.Equal(t, uint32(1700000000), reserves.BlockTimestampLast)
}

func TestRouterGetAmountsOut(t *testing.T) {
	backend := &fakeBackend{abi: RouterABI, results: map[string][]any{
		"getAmountsOut": {[]*big.Int{big.NewInt(100), big.NewInt(197)}},
	}}
	router := NewRouter(common.HexToAddress("0x20"), backend)

	amounts, err := router.GetAmountsOut(context.Background(), big.NewInt(100),
		[]common.Address{common.HexToAddress("0x01"), common.HexToAddress("0x02")})
	require.NoError(t, err)
	require.Len(t, amounts, 2)
	assert.Equal(t, int64(197), amounts[1].Int64())
}

func TestApprovePacksCalldata(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	opts, err := bind.NewKeyedTransactorWithChainID(key, big.NewInt(31337))
	require.NoError(t, err)
	opts.NoSend = true
	opts.Nonce = big.NewInt(0)
	opts.GasLimit = 60000
	opts.GasPrice = big.NewInt(1)

	token := NewERC20(common.HexToAddress("0x01"), &fakeBackend{abi: ERC20ABI})
	spender := common.HexToAddress("0x03")
	max := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

	tx, err := token.Approve(opts, spender, max)
	require.NoError(t, err)

	data := tx.Data()
	assert.Equal(t, "095ea7b3", common.Bytes2Hex(data[:4]))
	args, err := ERC20ABI.Methods["approve"].Inputs.Unpack(data[4:])
	require.NoError(t, err)
	assert.Equal(t, spender, args[0])
	assert.Equal(t, 0, max.Cmp(args[1].(*big.Int)))
}
