package engine

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/mattsse/inscribememaybe/internal/chain"
	"github.com/mattsse/inscribememaybe/internal/domain/model"
	"github.com/mattsse/inscribememaybe/internal/retry"
	"github.com/mattsse/inscribememaybe/internal/store"
)

const (
	devKey     = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	devAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// instantPolicy retries without sleeping so scenarios with transient
// failures finish immediately. The sleep still honors cancellation the way
// the real backoff does.
func instantPolicy(maxAttempts int) retry.Policy {
	return retry.Policy{
		MaxAttempts:    maxAttempts,
		BackoffInitial: time.Millisecond,
		BackoffMax:     4 * time.Millisecond,
		SleepFn: func(ctx context.Context, _ time.Duration) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
				return nil
			}
		},
	}
}

// fakeClient scripts an endpoint. Error queues are consumed one per call;
// an empty queue means success with the configured value. Submission
// failures are keyed by the 1-based call ordinal so retries and skips can
// be placed precisely.
type fakeClient struct {
	mu sync.Mutex

	chainID      *big.Int
	chainIDErrs  []error
	pendingNonce uint64
	nonceErrs    []error
	nonceCalls   int
	fees         *chain.FeeQuote
	feeErrs      []error
	gasLimit     uint64
	estimateErrs []error

	sendErrs  map[int]error
	onSend    func(call int)
	sendCalls int
	sent      [][]byte
}

var _ chain.Client = (*fakeClient)(nil)

func newFakeClient() *fakeClient {
	return &fakeClient{
		chainID:      big.NewInt(int64(model.ChainSepolia)),
		pendingNonce: 7,
		gasLimit:     30000,
		fees: &chain.FeeQuote{
			Dynamic:  true,
			GasPrice: big.NewInt(2_000_000_000),
			TipCap:   big.NewInt(1_000_000_000),
			FeeCap:   big.NewInt(30_000_000_000),
		},
		sendErrs: map[int]error{},
	}
}

func popErr(queue *[]error) error {
	if len(*queue) == 0 {
		return nil
	}
	err := (*queue)[0]
	*queue = (*queue)[1:]
	return err
}

func (f *fakeClient) ChainID(context.Context) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := popErr(&f.chainIDErrs); err != nil {
		return nil, err
	}
	return new(big.Int).Set(f.chainID), nil
}

func (f *fakeClient) PendingNonce(_ context.Context, _ common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nonceCalls++
	if err := popErr(&f.nonceErrs); err != nil {
		return 0, err
	}
	return f.pendingNonce, nil
}

func (f *fakeClient) SuggestFees(context.Context) (*chain.FeeQuote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := popErr(&f.feeErrs); err != nil {
		return nil, err
	}
	return f.fees, nil
}

func (f *fakeClient) EstimateGas(_ context.Context, _ chain.CallMsg) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := popErr(&f.estimateErrs); err != nil {
		return 0, err
	}
	return f.gasLimit, nil
}

func (f *fakeClient) SendRawTransaction(_ context.Context, raw []byte) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendCalls++
	if f.onSend != nil {
		f.onSend(f.sendCalls)
	}
	if err, ok := f.sendErrs[f.sendCalls]; ok {
		return common.Hash{}, err
	}
	f.sent = append(f.sent, append([]byte(nil), raw...))
	return crypto.Keccak256Hash(raw), nil
}

// memRepo is an in-memory InscriptionRepository. Insert failures are keyed
// by the 1-based insert ordinal.
type memRepo struct {
	mu         sync.Mutex
	records    []model.InscriptionRecord
	insertErrs map[int]error
	inserts    int
}

var _ store.InscriptionRepository = (*memRepo)(nil)

func newMemRepo() *memRepo {
	return &memRepo{insertErrs: map[int]error{}}
}

func (m *memRepo) Insert(_ context.Context, rec *model.InscriptionRecord) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inserts++
	if err, ok := m.insertErrs[m.inserts]; ok {
		return 0, err
	}
	cp := *rec
	cp.ID = int64(len(m.records) + 1)
	cp.CreatedAt = time.Now()
	m.records = append(m.records, cp)
	return cp.ID, nil
}

func (m *memRepo) Count(_ context.Context, sender string, chainID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, rec := range m.records {
		if strings.EqualFold(rec.Sender, sender) && rec.ChainID == chainID {
			n++
		}
	}
	return n, nil
}

func (m *memRepo) ListBySender(_ context.Context, sender string, chainID int64, limit int) ([]model.InscriptionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.InscriptionRecord
	for i := len(m.records) - 1; i >= 0; i-- {
		rec := m.records[i]
		if !strings.EqualFold(rec.Sender, sender) || rec.ChainID != chainID {
			continue
		}
		out = append(out, rec)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
