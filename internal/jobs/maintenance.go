package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lumeochat/messenger-go/internal/repository"
	"github.com/lumeochat/messenger-go/internal/service"
)

const staleDeviceAge = 90 * 24 * time.Hour

// MaintenanceJob periodically repairs presence state and prunes dead
// push registrations. Presence repair catches users left "online" by a
// crash that skipped disconnect handling.
type MaintenanceJob struct {
	users          repository.UserRepository
	devices        repository.DeviceRepository
	presence       *service.PresenceService
	staleThreshold time.Duration
	interval       time.Duration
	done           chan struct{}
}

func NewMaintenanceJob(
	users repository.UserRepository,
	devices repository.DeviceRepository,
	presence *service.PresenceService,
	staleThreshold time.Duration,
	interval time.Duration,
) *MaintenanceJob {
	return &MaintenanceJob{
		users:          users,
		devices:        devices,
		presence:       presence,
		staleThreshold: staleThreshold,
		interval:       interval,
		done:           make(chan struct{}),
	}
}

func (j *MaintenanceJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Msg("maintenance job started")
}

func (j *MaintenanceJob) Stop() {
	close(j.done)
	log.Info().Msg("maintenance job stopped")
}

func (j *MaintenanceJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.sweep()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.sweep()
		}
	}
}

func (j *MaintenanceJob) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	threshold := time.Now().Add(-j.staleThreshold)
	count, err := j.users.MarkStaleOffline(ctx, threshold, j.presence.OnlineUserIDs())
	if err != nil {
		log.Error().Err(err).Msg("failed to mark stale users offline")
	} else if count > 0 {
		log.Info().Int64("count", count).Msg("marked stale users offline")
	}

	count, err = j.devices.DeleteStale(ctx, time.Now().Add(-staleDeviceAge))
	if err != nil {
		log.Error().Err(err).Msg("failed to prune stale devices")
	} else if count > 0 {
		log.Info().Int64("count", count).Msg("pruned stale devices")
	}
}
