package plugin

import (
	"context"
	"sync"

	"github.com/bwmarrin/snowflake"

	"github.com/smallbiznis/paycore/internal/payment/domain"
)

// Mock is a scriptable gateway plugin for tests. Outcomes are consumed in
// FIFO order per method; an empty script answers PROCESSED echoing the
// requested amount.
type Mock struct {
	mu sync.Mutex

	PluginName string

	executeScript []scripted
	queryScript   []scripted

	ExecuteCalls []domain.ExecuteRequest
	QueryCalls   []snowflake.ID
}

type scripted struct {
	outcome *domain.PluginOutcome
	err     error
	block   bool
}

func NewMock() *Mock { return &Mock{PluginName: "mock"} }

func (m *Mock) Name() string { return m.PluginName }

// ScriptExecute queues the next Execute answer.
func (m *Mock) ScriptExecute(outcome *domain.PluginOutcome, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executeScript = append(m.executeScript, scripted{outcome: outcome, err: err})
}

// ScriptExecuteBlock queues an Execute that hangs until the context is done.
func (m *Mock) ScriptExecuteBlock() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executeScript = append(m.executeScript, scripted{block: true})
}

// ScriptQuery queues the next QueryStatus answer.
func (m *Mock) ScriptQuery(outcome *domain.PluginOutcome, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queryScript = append(m.queryScript, scripted{outcome: outcome, err: err})
}

func (m *Mock) Execute(ctx context.Context, req domain.ExecuteRequest) (*domain.PluginOutcome, error) {
	m.mu.Lock()
	m.ExecuteCalls = append(m.ExecuteCalls, req)
	var next scripted
	has := len(m.executeScript) > 0
	if has {
		next = m.executeScript[0]
		m.executeScript = m.executeScript[1:]
	}
	m.mu.Unlock()

	if !has {
		return &domain.PluginOutcome{
			Status:            domain.PluginStatusProcessed,
			ProcessedAmount:   req.Amount,
			ProcessedCurrency: req.Currency,
		}, nil
	}
	if next.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return next.outcome, next.err
}

func (m *Mock) QueryStatus(_ context.Context, _, _, transactionID snowflake.ID) (*domain.PluginOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.QueryCalls = append(m.QueryCalls, transactionID)
	if len(m.queryScript) == 0 {
		return &domain.PluginOutcome{Status: domain.PluginStatusUndefined}, nil
	}
	next := m.queryScript[0]
	m.queryScript = m.queryScript[1:]
	return next.outcome, next.err
}
