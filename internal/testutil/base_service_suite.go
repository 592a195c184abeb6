package testutil

import (
	"context"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/renewd/renewd/internal/config"
	"github.com/renewd/renewd/internal/domain/ledger"
	"github.com/renewd/renewd/internal/domain/tenant"
	"github.com/renewd/renewd/internal/locker"
	"github.com/renewd/renewd/internal/logger"
	webhookPublisher "github.com/renewd/renewd/internal/webhook/publisher"
)

// Stores holds all the repository interfaces for testing
type Stores struct {
	TenantRepo tenant.Repository
	LedgerRepo ledger.Repository
}

// BaseServiceTestSuite provides common functionality for all service test suites
type BaseServiceTestSuite struct {
	suite.Suite
	ctx              context.Context
	stores           Stores
	gateway          *FakeGateway
	locker           *locker.TenantLocker
	webhookPublisher webhookPublisher.WebhookPublisher
	logger           *logger.Logger
	config           *config.Configuration
	now              time.Time
}

// SetupSuite is called once before running the tests in the suite
func (s *BaseServiceTestSuite) SetupSuite() {
	s.config = config.GetDefaultConfig()

	var err error
	s.logger, err = logger.NewLogger(s.config)
	if err != nil {
		s.T().Fatalf("failed to create logger: %v", err)
	}
}

// SetupTest is called before each test
func (s *BaseServiceTestSuite) SetupTest() {
	s.ctx = SetupContext()
	s.setupStores()
	s.now = time.Now().UTC()
}

// TearDownTest is called after each test
func (s *BaseServiceTestSuite) TearDownTest() {
	s.clearStores()
}

func (s *BaseServiceTestSuite) setupStores() {
	s.stores = Stores{
		TenantRepo: NewInMemoryTenantStore(),
		LedgerRepo: NewInMemoryLedgerStore(),
	}
	s.gateway = NewFakeGateway()
	s.locker = locker.NewTenantLocker()
	s.webhookPublisher = NewInMemoryWebhookPublisher()
}

func (s *BaseServiceTestSuite) clearStores() {
	s.stores.TenantRepo.(*InMemoryTenantStore).Clear()
	s.stores.LedgerRepo.(*InMemoryLedgerStore).Clear()
	s.gateway.Reset()
	s.webhookPublisher.(*InMemoryWebhookPublisher).Clear()
}

func (s *BaseServiceTestSuite) ClearStores() {
	s.clearStores()
}

// GetContext returns the test context
func (s *BaseServiceTestSuite) GetContext() context.Context {
	return s.ctx
}

// GetConfig returns the test configuration
func (s *BaseServiceTestSuite) GetConfig() *config.Configuration {
	return s.config
}

// GetStores returns all test repositories
func (s *BaseServiceTestSuite) GetStores() Stores {
	return s.stores
}

// GetGateway returns the programmable payment gateway
func (s *BaseServiceTestSuite) GetGateway() *FakeGateway {
	return s.gateway
}

// GetLocker returns the per-tenant locker
func (s *BaseServiceTestSuite) GetLocker() *locker.TenantLocker {
	return s.locker
}

// GetWebhookPublisher returns the capturing webhook publisher
func (s *BaseServiceTestSuite) GetWebhookPublisher() webhookPublisher.WebhookPublisher {
	return s.webhookPublisher
}

// GetWebhookEvents returns the events the services emitted so far
func (s *BaseServiceTestSuite) GetWebhookEvents() *InMemoryWebhookPublisher {
	return s.webhookPublisher.(*InMemoryWebhookPublisher)
}

// GetLogger returns the test logger
func (s *BaseServiceTestSuite) GetLogger() *logger.Logger {
	return s.logger
}

// GetNow returns the current time stamped at test setup
func (s *BaseServiceTestSuite) GetNow() time.Time {
	return s.now
}
