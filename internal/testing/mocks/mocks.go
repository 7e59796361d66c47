// Package mocks holds testify mocks of the relay and node services.
package mocks

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/mock"

	"github.com/smartcontractkit/safe-wallet-framework/chain/evm"
	"github.com/smartcontractkit/safe-wallet-framework/relay"
)

// MockClients groups the mocks of the network collaborators of the orchestration services.
type MockClients struct {
	Relay *MockRelayService
	Node  *MockNodeService
}

// NewMockClients creates a new MockClients. Expectations are asserted when the test ends.
func NewMockClients(t *testing.T) *MockClients {
	t.Helper()

	return &MockClients{
		Relay: NewMockRelayService(t),
		Node:  NewMockNodeService(t),
	}
}

// MockRelayService is a mock of relay.Service.
type MockRelayService struct {
	mock.Mock
}

var _ relay.Service = (*MockRelayService)(nil)

// NewMockRelayService creates a new MockRelayService asserting its expectations on cleanup.
func NewMockRelayService(t *testing.T) *MockRelayService {
	t.Helper()

	m := &MockRelayService{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}

func (m *MockRelayService) CreateSafeCreationTransaction(ctx context.Context, req relay.SafeCreationRequest) (relay.SafeCreationResponse, error) {
	args := m.Called(ctx, req)

	return args.Get(0).(relay.SafeCreationResponse), args.Error(1)
}

func (m *MockRelayService) StartSafeCreation(ctx context.Context, safe common.Address) error {
	args := m.Called(ctx, safe)

	return args.Error(0)
}

func (m *MockRelayService) SafeCreationTransactionHash(ctx context.Context, safe common.Address) (*common.Hash, error) {
	args := m.Called(ctx, safe)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*common.Hash), args.Error(1)
}

func (m *MockRelayService) EstimateTransaction(ctx context.Context, req relay.EstimateRequest) (relay.Estimation, error) {
	args := m.Called(ctx, req)

	return args.Get(0).(relay.Estimation), args.Error(1)
}

func (m *MockRelayService) SubmitTransaction(ctx context.Context, req relay.SubmitRequest) (relay.SubmitResponse, error) {
	args := m.Called(ctx, req)

	return args.Get(0).(relay.SubmitResponse), args.Error(1)
}

// MockNodeService is a mock of evm.NodeService.
type MockNodeService struct {
	mock.Mock
}

var _ evm.NodeService = (*MockNodeService)(nil)

// NewMockNodeService creates a new MockNodeService asserting its expectations on cleanup.
func NewMockNodeService(t *testing.T) *MockNodeService {
	t.Helper()

	m := &MockNodeService{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}

func (m *MockNodeService) GetBalance(ctx context.Context, address common.Address) (*big.Int, error) {
	args := m.Called(ctx, address)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*big.Int), args.Error(1)
}

func (m *MockNodeService) GetTransactionReceipt(ctx context.Context, hash common.Hash) (*evm.Receipt, error) {
	args := m.Called(ctx, hash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*evm.Receipt), args.Error(1)
}

func (m *MockNodeService) Call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	args := m.Called(ctx, to, data)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]byte), args.Error(1)
}
