package redispub

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"stationmgr/backend/services/station-manager/internal/livestatus"
	"stationmgr/backend/services/station-manager/internal/models"
	"stationmgr/backend/services/station-manager/internal/notify"
)

// LivestatusKey holds the JSON encoded rows of the latest monitoring poll.
const LivestatusKey = "stations:livestatus:last"

const writeTimeout = 3 * time.Second

// Commander is the subset of the redis client used by the publisher.
type Commander interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// Snapshotter provides the data mirrored to redis.
type Snapshotter interface {
	ListStations() []models.StationView
	LastLivestatusDump() []livestatus.Row
}

// StationsUpdate is the message published on the updates channel.
type StationsUpdate struct {
	Seq      uint64               `json:"seq"`
	At       time.Time            `json:"at"`
	Stations []models.StationView `json:"stations"`
}

// UpdatePublisher mirrors station changes to redis for other consumers.
type UpdatePublisher struct {
	client  Commander
	source  Snapshotter
	channel string
	logger  *zap.Logger
}

// NewUpdatePublisher returns redis-backed publisher.
func NewUpdatePublisher(client Commander, source Snapshotter, channel string, logger *zap.Logger) *UpdatePublisher {
	return &UpdatePublisher{
		client:  client,
		source:  source,
		channel: channel,
		logger:  logger.Named("redis_publisher"),
	}
}

// Run publishes one update per hub event until ctx is done. Redis errors are logged only.
func (p *UpdatePublisher) Run(ctx context.Context, sub *notify.Subscription) {
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C():
			if !ok {
				return
			}
			if err := p.Publish(ctx, ev); err != nil {
				p.logger.Warn("failed to publish station update", zap.Uint64("seq", ev.Seq), zap.Error(err))
			}
		}
	}
}

// Publish sends the current station list and stores the latest monitoring dump.
func (p *UpdatePublisher) Publish(ctx context.Context, ev notify.Event) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	update, err := json.Marshal(StationsUpdate{Seq: ev.Seq, At: ev.At, Stations: p.source.ListStations()})
	if err != nil {
		return err
	}
	if err := p.client.Publish(ctx, p.channel, update).Err(); err != nil {
		return err
	}

	dump, err := json.Marshal(p.source.LastLivestatusDump())
	if err != nil {
		return err
	}
	return p.client.Set(ctx, LivestatusKey, dump, 0).Err()
}
