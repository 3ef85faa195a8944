package scheduler

import (
	"time"

	"github.com/dukkanhq/dukkan-backend/internal/app/service"
	"github.com/dukkanhq/dukkan-backend/pkg/logger"
	"github.com/robfig/cron/v3"
)

// OrderExpiryScheduler cancels card orders whose payment never arrived and
// puts their stock back on the shelf.
type OrderExpiryScheduler struct {
	cron         *cron.Cron
	orderService service.OrderService
	expiry       time.Duration
}

func NewOrderExpiryScheduler(orderService service.OrderService, expiry time.Duration) *OrderExpiryScheduler {
	return &OrderExpiryScheduler{
		cron:         cron.New(),
		orderService: orderService,
		expiry:       expiry,
	}
}

// Start registers the hourly expiry job
func (s *OrderExpiryScheduler) Start() error {
	_, err := s.cron.AddFunc("@hourly", func() {
		logger.Info("Starting scheduled stale payment expiry", map[string]interface{}{
			"expiry": s.expiry.String(),
		})

		expired, err := s.orderService.ExpireStalePayments(s.expiry)
		if err != nil {
			logger.Error("Failed to expire stale payments from scheduler", err)
			return
		}

		logger.Info("Scheduled stale payment expiry finished", map[string]interface{}{
			"expired": expired,
		})
	})

	if err != nil {
		logger.Error("Failed to add cron job for order expiry", err)
		return err
	}

	s.cron.Start()
	logger.Info("Order expiry scheduler started successfully (hourly)", nil)

	return nil
}

// Stop stops the scheduler
func (s *OrderExpiryScheduler) Stop() {
	logger.Info("Stopping order expiry scheduler...", nil)
	s.cron.Stop()
	logger.Info("Order expiry scheduler stopped", nil)
}
