package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"github.com/SAP-F-2025/enrollment-service/internal/config"
	"github.com/SAP-F-2025/enrollment-service/internal/models"
	"github.com/SAP-F-2025/enrollment-service/internal/payment"
	"github.com/SAP-F-2025/enrollment-service/internal/repositories"
)

const reconcileBatchSize = 100

type reconciliationService struct {
	repo     repositories.Repository
	db       *gorm.DB
	gateway  payment.Gateway
	checkout CheckoutService
	config   config.ReconcileConfig
	logger   *slog.Logger
	now      func() time.Time

	mu   sync.Mutex
	cron *cron.Cron
}

func NewReconciliationService(repo repositories.Repository, db *gorm.DB, gateway payment.Gateway, checkout CheckoutService, cfg config.ReconcileConfig, logger *slog.Logger) ReconciliationService {
	if cfg.Schedule == "" {
		cfg.Schedule = "@every 5m"
	}
	if cfg.PaidGrace <= 0 {
		cfg.PaidGrace = time.Minute
	}
	if cfg.PendingAfter <= 0 {
		cfg.PendingAfter = 10 * time.Minute
	}
	if cfg.PendingWindow <= 0 {
		cfg.PendingWindow = 24 * time.Hour
	}
	return &reconciliationService{
		repo:     repo,
		db:       db,
		gateway:  gateway,
		checkout: checkout,
		config:   cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Run performs one sweep. Each step logs its own failures and the sweep
// continues with the next one.
func (s *reconciliationService) Run(ctx context.Context) (*ReconcileReport, error) {
	started := s.now()
	report := &ReconcileReport{}

	s.finalizePaidOrders(ctx, report)
	s.checkPendingOrders(ctx, report)

	corrected, err := s.repo.Course().SyncStudentCounts(ctx, s.db)
	if err != nil {
		s.logger.Error("Failed to sync student counts", "error", err)
		report.Errors++
	}
	report.CountsCorrected = corrected

	s.logger.Info("Reconciliation sweep finished",
		"orders_considered", report.OrdersConsidered,
		"paid_finalized", report.PaidFinalized,
		"pending_captured", report.PendingCaptured,
		"counts_corrected", report.CountsCorrected,
		"errors", report.Errors,
		"duration", time.Since(started))

	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

// finalizePaidOrders retries orders whose payment was recorded but whose
// enrollments were never written.
func (s *reconciliationService) finalizePaidOrders(ctx context.Context, report *ReconcileReport) {
	olderThan := s.now().Add(-s.config.PaidGrace)
	orders, err := s.repo.Order().List(ctx, s.db, repositories.OrderFilters{
		Statuses:  []models.OrderStatus{models.OrderPaid},
		OlderThan: &olderThan,
		Limit:     reconcileBatchSize,
	})
	if err != nil {
		s.logger.Error("Failed to list paid orders", "error", err)
		report.Errors++
		return
	}

	for _, order := range orders {
		report.OrdersConsidered++
		if err := s.finalize(ctx, order, derefString(order.GatewayPaymentID)); err != nil {
			report.Errors++
			continue
		}
		report.PaidFinalized++
	}
}

// checkPendingOrders asks the gateway about orders that never reported back.
func (s *reconciliationService) checkPendingOrders(ctx context.Context, report *ReconcileReport) {
	if s.gateway == nil {
		return
	}

	now := s.now()
	olderThan := now.Add(-s.config.PendingAfter)
	newerThan := now.Add(-s.config.PendingWindow)
	orders, err := s.repo.Order().List(ctx, s.db, repositories.OrderFilters{
		Statuses:  []models.OrderStatus{models.OrderCreated, models.OrderFailed},
		OlderThan: &olderThan,
		NewerThan: &newerThan,
		Limit:     reconcileBatchSize,
	})
	if err != nil {
		s.logger.Error("Failed to list pending orders", "error", err)
		report.Errors++
		return
	}

	for _, order := range orders {
		if ctx.Err() != nil {
			return
		}
		report.OrdersConsidered++

		payments, err := s.gateway.FetchOrderPayments(ctx, order.GatewayOrderID)
		if err != nil {
			s.logger.Warn("Failed to fetch order payments", "order_id", order.GatewayOrderID, "error", err)
			report.Errors++
			continue
		}

		captured := capturedPayment(payments)
		if captured == nil {
			continue
		}

		s.logger.Info("Found captured payment for pending order", "order_id", order.GatewayOrderID, "payment_id", captured.ID)
		if err := s.finalize(ctx, order, captured.ID); err != nil {
			report.Errors++
			continue
		}
		report.PendingCaptured++
	}
}

func (s *reconciliationService) finalize(ctx context.Context, order *models.PaymentOrder, paymentID string) error {
	_, err := s.checkout.FinalizeOrder(ctx, order.GatewayOrderID, paymentID)
	if err == nil {
		return nil
	}
	if enrollmentBlocked(err) {
		s.logger.Warn("Order moved to enrollment_failed", "order_id", order.GatewayOrderID, "error", err)
	} else {
		s.logger.Error("Failed to finalize order", "order_id", order.GatewayOrderID, "error", err)
	}
	return err
}

func capturedPayment(payments []payment.Payment) *payment.Payment {
	for i := range payments {
		if payments[i].Status == payment.PaymentCaptured {
			return &payments[i]
		}
	}
	return nil
}

// Start schedules Run on the configured cron spec. Overlapping runs are skipped.
func (s *reconciliationService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return nil
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := c.AddFunc(s.config.Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if _, err := s.Run(ctx); err != nil {
			s.logger.Error("Reconciliation sweep aborted", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid reconciliation schedule %q: %w", s.config.Schedule, err)
	}

	c.Start()
	s.cron = c
	s.logger.Info("Reconciliation scheduler started", "schedule", s.config.Schedule)
	return nil
}

// Stop waits for a running sweep to finish or ctx to expire.
func (s *reconciliationService) Stop(ctx context.Context) error {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c == nil {
		return nil
	}

	select {
	case <-c.Stop().Done():
		s.logger.Info("Reconciliation scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
