package cron

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/popup-village/portal-backend/internal/repository"
	"github.com/popup-village/portal-backend/internal/service"
)

// Scheduler handles scheduled maintenance tasks
type Scheduler struct {
	cron        *cron.Cron
	clusterSvc  service.ClusterService
	citizenRepo repository.CitizenRepository
}

// NewScheduler creates a new scheduler
func NewScheduler(clusterSvc service.ClusterService, citizenRepo repository.CitizenRepository) *Scheduler {
	return &Scheduler{
		cron:        cron.New(),
		clusterSvc:  clusterSvc,
		citizenRepo: citizenRepo,
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	// Run every 5 minutes - finalize expired cluster join requests
	s.cron.AddFunc("*/5 * * * *", func() {
		log.Println("[Cron] Running expired join request sweep...")
		s.sweepExpiredJoinRequests()
	})

	// Run every day at 4 AM - clear stale login codes
	s.cron.AddFunc("0 4 * * *", func() {
		log.Println("[Cron] Running login code cleanup...")
		s.purgeExpiredLoginCodes()
	})

	s.cron.Start()
	log.Println("[Cron] Scheduler started")
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.cron.Stop()
	log.Println("[Cron] Scheduler stopped")
}

func (s *Scheduler) sweepExpiredJoinRequests() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := s.clusterSvc.SweepExpired(ctx, time.Now()); err != nil {
		log.Printf("[Cron] Error sweeping expired join requests: %v", err)
	}
}

func (s *Scheduler) purgeExpiredLoginCodes() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	purged, err := s.citizenRepo.PurgeExpiredLoginCodes(ctx, time.Now())
	if err != nil {
		log.Printf("[Cron] Error purging expired login codes: %v", err)
		return
	}
	if purged > 0 {
		log.Printf("[Cron] Cleared %d expired login codes", purged)
	}
}
