package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"gorm.io/gorm"

	"github.com/SAP-F-2025/enrollment-service/internal/cache"
	"github.com/SAP-F-2025/enrollment-service/internal/config"
	"github.com/SAP-F-2025/enrollment-service/internal/events"
	"github.com/SAP-F-2025/enrollment-service/internal/payment"
	"github.com/SAP-F-2025/enrollment-service/internal/repositories"
	"github.com/SAP-F-2025/enrollment-service/internal/validator"
)

// ServiceManagerConfig holds the collaborators and settings shared by services.
// A nil Gateway or CartStore disables the features that need them.
type ServiceManagerConfig struct {
	Completion CompletionPolicy
	Currency   string
	Reconcile  config.ReconcileConfig

	Cache     *cache.CacheManager
	CartStore cache.CartStore
	Gateway   payment.Gateway
	Publisher events.EventPublisher
}

// serviceManager implements ServiceManager interface
type serviceManager struct {
	// Dependencies
	db        *gorm.DB
	repo      repositories.Repository
	logger    *slog.Logger
	validator *validator.Validator
	config    ServiceManagerConfig

	// Service instances
	cartService           CartService
	couponService         CouponService
	enrollmentService     EnrollmentService
	checkoutService       CheckoutService
	progressService       ProgressService
	reconciliationService ReconciliationService

	// Lifecycle management
	initialized bool
	shutdown    bool
	mu          sync.RWMutex
}

// NewServiceManager creates a new service manager with all dependencies
func NewServiceManager(db *gorm.DB, repo repositories.Repository, logger *slog.Logger, validator *validator.Validator, config ServiceManagerConfig) ServiceManager {
	if config.Completion.Mode == "" {
		config.Completion = DefaultCompletionPolicy()
	}
	return &serviceManager{
		db:        db,
		repo:      repo,
		logger:    logger,
		validator: validator,
		config:    config,
	}
}

// Initialize sets up all services and their dependencies
func (sm *serviceManager) Initialize(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.initialized {
		return nil
	}

	sm.logger.Info("Initializing service manager")

	cfg := sm.config
	sm.couponService = NewCouponService(sm.repo, sm.db, cfg.Cache, sm.logger, sm.validator)
	sm.cartService = NewCartService(sm.repo, sm.db, cfg.CartStore, sm.couponService, sm.logger, sm.validator)
	sm.enrollmentService = NewEnrollmentService(sm.repo, sm.db, sm.couponService, sm.cartService, cfg.Publisher, sm.logger, sm.validator)
	sm.checkoutService = NewCheckoutService(sm.repo, sm.db, cfg.Gateway, sm.couponService, sm.enrollmentService, sm.cartService, cfg.Publisher, cfg.Currency, sm.logger, sm.validator)
	sm.progressService = NewProgressService(sm.repo, sm.db, cfg.Completion, cfg.Publisher, sm.logger, sm.validator)
	sm.reconciliationService = NewReconciliationService(sm.repo, sm.db, cfg.Gateway, sm.checkoutService, cfg.Reconcile, sm.logger)

	if cfg.Gateway == nil {
		sm.logger.Warn("Payment gateway not configured, paid checkout disabled")
	}
	if cfg.CartStore == nil {
		sm.logger.Warn("Cart store not configured, cart endpoints disabled")
	}

	if cfg.Reconcile.Enabled {
		if err := sm.reconciliationService.Start(); err != nil {
			return fmt.Errorf("failed to start reconciliation: %w", err)
		}
	}

	sm.initialized = true
	sm.logger.Info("Service manager initialized successfully", "completion_policy", cfg.Completion.Mode)

	return nil
}

// Service getters
func (sm *serviceManager) Cart() CartService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sm.mustBeInitialized()
	return sm.cartService
}

func (sm *serviceManager) Coupon() CouponService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sm.mustBeInitialized()
	return sm.couponService
}

func (sm *serviceManager) Enrollment() EnrollmentService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sm.mustBeInitialized()
	return sm.enrollmentService
}

func (sm *serviceManager) Checkout() CheckoutService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sm.mustBeInitialized()
	return sm.checkoutService
}

func (sm *serviceManager) Progress() ProgressService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sm.mustBeInitialized()
	return sm.progressService
}

func (sm *serviceManager) Reconciliation() ReconciliationService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sm.mustBeInitialized()
	return sm.reconciliationService
}

func (sm *serviceManager) mustBeInitialized() {
	if !sm.initialized {
		panic("service manager not initialized")
	}
}

// Health and lifecycle
func (sm *serviceManager) HealthCheck(ctx context.Context) error {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		return fmt.Errorf("service manager not initialized")
	}
	if sm.shutdown {
		return fmt.Errorf("service manager is shut down")
	}

	if err := sm.repo.Ping(ctx); err != nil {
		return fmt.Errorf("repository health check failed: %w", err)
	}

	// cache outages degrade to database reads
	if sm.config.Cache != nil && sm.config.Cache.Course.Available() {
		if err := sm.config.Cache.HealthCheck(ctx); err != nil {
			sm.logger.Warn("Cache health check failed", "error", err)
		}
	}

	return nil
}

func (sm *serviceManager) Shutdown(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.shutdown {
		return nil
	}

	sm.logger.Info("Shutting down service manager")

	if sm.reconciliationService != nil {
		if err := sm.reconciliationService.Stop(ctx); err != nil {
			sm.logger.Error("Failed to stop reconciliation", "error", err)
		}
	}

	if sm.config.Publisher != nil {
		if err := sm.config.Publisher.Close(); err != nil {
			sm.logger.Error("Failed to close event publisher", "error", err)
		}
	}

	sm.shutdown = true
	sm.logger.Info("Service manager shut down completed")

	return nil
}
