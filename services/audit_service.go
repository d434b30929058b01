package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"schoolhub_go/config"
	"schoolhub_go/database"
	"schoolhub_go/models"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

const (
	auditQueueKey = "audit:queue"
	auditCacheTTL = 24 * time.Hour
)

// AuditBroadcaster pushes audit events to connected reporting collaborators.
// Implemented by the websocket hub; wired in main to avoid an import cycle.
type AuditBroadcaster interface {
	BroadcastAudit(entry models.AuditLog)
}

// AuditEvent is one state-changing call, successful or failed.
type AuditEvent struct {
	Actor     uint
	Action    string
	TableName string
	RecordID  uint
	OldValue  interface{}
	NewValue  interface{}
	IPAddress string
	UserAgent string
}

// AuditService persists audit events, Redis-first with database fallback.
type AuditService struct {
	broadcaster AuditBroadcaster
}

var defaultAudit = &AuditService{}

// Audit returns the shared audit service.
func Audit() *AuditService {
	return defaultAudit
}

// SetAuditBroadcaster wires a websocket hub into the shared audit service.
func SetAuditBroadcaster(b AuditBroadcaster) {
	defaultAudit.broadcaster = b
}

// Emit records an audit event. Events are queued in Redis for batch flushing;
// if Redis is unavailable they are written straight to the database. Emission
// never fails the calling operation.
func (s *AuditService) Emit(ev AuditEvent) {
	entry := models.AuditLog{
		UserID:    ev.Actor,
		Action:    ev.Action,
		TableName: ev.TableName,
		RecordID:  ev.RecordID,
		OldValue:  marshalAuditValue(ev.OldValue),
		NewValue:  marshalAuditValue(ev.NewValue),
		IPAddress: ev.IPAddress,
		UserAgent: ev.UserAgent,
	}

	if err := s.cacheAuditEntry(entry); err != nil {
		if database.DB == nil {
			logrus.Error("database.DB is nil; cannot save audit entry")
			return
		}
		if dbErr := database.DB.Create(&entry).Error; dbErr != nil {
			logrus.WithError(dbErr).WithFields(logrus.Fields{
				"action": ev.Action,
				"table":  ev.TableName,
			}).Error("Failed to save audit entry to database")
			return
		}
	}

	if s.broadcaster != nil {
		s.broadcaster.BroadcastAudit(entry)
	}
}

// EmitFailure records a failed attempt at a state-changing operation.
func (s *AuditService) EmitFailure(actor uint, action, tableName string, recordID uint, opErr error) {
	s.Emit(AuditEvent{
		Actor:     actor,
		Action:    action + "_FAILED",
		TableName: tableName,
		RecordID:  recordID,
		NewValue:  map[string]string{"error": opErr.Error()},
	})
}

func marshalAuditValue(v interface{}) models.JSON {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		logrus.WithError(err).Warn("Failed to marshal audit value")
		return nil
	}
	return data
}

// cacheAuditEntry stores an audit entry in Redis with a 24-hour TTL and
// registers it in the flush queue.
func (s *AuditService) cacheAuditEntry(entry models.AuditLog) error {
	redisClient := database.GetRedisClient()
	if redisClient == nil {
		return fmt.Errorf("redis client is nil")
	}
	if config.AppConfig != nil && !config.AppConfig.UseRedisAudit {
		return fmt.Errorf("redis audit caching disabled")
	}

	ctx := context.Background()

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %v", err)
	}

	cacheKey := fmt.Sprintf("audit:%d:%s:%d", entry.UserID, entry.Action, time.Now().UnixNano())
	if err := redisClient.Set(ctx, cacheKey, data, auditCacheTTL).Err(); err != nil {
		return fmt.Errorf("failed to cache audit entry: %v", err)
	}

	if err := redisClient.ZAdd(ctx, auditQueueKey, &redis.Z{
		Score:  float64(time.Now().Unix()),
		Member: cacheKey,
	}).Err(); err != nil {
		logrus.WithError(err).Error("Failed to add audit entry to flush queue")
	}

	return nil
}

// FlushCachedAudits moves queued audit entries from Redis into the database.
// Called by the cron scheduler and exposed through the admin API.
func (s *AuditService) FlushCachedAudits() (int, error) {
	redisClient := database.GetRedisClient()
	if redisClient == nil {
		return 0, fmt.Errorf("redis client not available")
	}

	ctx := context.Background()

	keys, err := redisClient.ZRangeByScore(ctx, auditQueueKey, &redis.ZRangeBy{
		Min: "0",
		Max: fmt.Sprintf("%d", time.Now().Unix()),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read audit queue: %v", err)
	}

	flushed := 0
	for _, key := range keys {
		data, err := redisClient.Get(ctx, key).Result()
		if err != nil {
			if err != redis.Nil {
				logrus.WithError(err).Errorf("Failed to get audit entry for key: %s", key)
			}
			// Entry expired or unreadable; drop it from the queue either way.
			redisClient.ZRem(ctx, auditQueueKey, key)
			continue
		}

		var entry models.AuditLog
		if err := json.Unmarshal([]byte(data), &entry); err != nil {
			logrus.WithError(err).Errorf("Failed to unmarshal audit entry for key: %s", key)
			redisClient.ZRem(ctx, auditQueueKey, key)
			continue
		}

		if err := database.DB.Create(&entry).Error; err != nil {
			logrus.WithError(err).Error("Failed to persist queued audit entry")
			continue
		}

		pipeline := redisClient.Pipeline()
		pipeline.Del(ctx, key)
		pipeline.ZRem(ctx, auditQueueKey, key)
		if _, err := pipeline.Exec(ctx); err != nil {
			logrus.WithError(err).Errorf("Failed to remove audit entry from cache: %s", key)
		}

		flushed++
	}

	if flushed > 0 {
		logrus.Infof("Flushed %d cached audit entries to database", flushed)
	}
	return flushed, nil
}
