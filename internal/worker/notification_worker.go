package worker

import (
	"go.uber.org/zap"

	"github.com/spec-kit/issue-service/internal/config"
	"github.com/spec-kit/issue-service/internal/events"
	"github.com/spec-kit/issue-service/internal/persistence"
	"github.com/spec-kit/issue-service/internal/service"
)

// StartNotificationWorker subscribes the notification handlers to dispatcher.
// Events are also forwarded to Redis when a client is available.
func StartNotificationWorker(dispatcher events.Dispatcher, redis *persistence.Redis, cfg *config.Config, logger *zap.Logger) *service.NotificationService {
	if dispatcher == nil {
		return nil
	}
	var forwarder service.EventForwarder
	if redis != nil && redis.Client != nil {
		forwarder = events.NewRedisPublisher(redis.Client, cfg.Redis.EventsChannel)
		logger.Info("forwarding issue events to redis", zap.String("channel", cfg.Redis.EventsChannel))
	}
	notifications := service.NewNotificationService(dispatcher, forwarder, logger, cfg.Notification)
	notifications.RegisterHandlers()
	return notifications
}
