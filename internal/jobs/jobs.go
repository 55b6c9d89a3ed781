package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/smartdesignpro/collab/internal/canvas"
	"github.com/smartdesignpro/collab/internal/metrics"
	"github.com/smartdesignpro/collab/internal/middleware"
	"github.com/smartdesignpro/collab/internal/room"
)

// parser accepts standard five-field specs, an optional seconds field and
// descriptors such as "@every 15m"
var parser = cron.NewParser(
	cron.SecondOptional |
		cron.Minute |
		cron.Hour |
		cron.Dom |
		cron.Month |
		cron.Dow |
		cron.Descriptor,
)

const flushTimeout = 30 * time.Second

// Runner holds the periodic maintenance work of the server
type Runner struct {
	Rooms     *room.Manager
	Cache     *canvas.Cache
	IPLimiter *middleware.IPRateLimit
	Metrics   *metrics.Metrics
	Logger    *zap.Logger

	// RoomTTL: how long an empty room is kept
	RoomTTL time.Duration
	// IPIdle: how long an unused handshake limiter is kept
	IPIdle time.Duration
}

// CleanupRooms: evicts idle empty rooms and stale per-IP limiters, then
// refreshes the room gauge
func (r *Runner) CleanupRooms() {
	logger := r.logger()

	evicted := r.Rooms.Cleanup(r.RoomTTL)
	for _, projectID := range evicted {
		logger.Info("room expired", zap.String("project_id", projectID))
	}
	if r.IPLimiter != nil && r.IPIdle > 0 {
		if n := r.IPLimiter.Cleanup(r.IPIdle); n > 0 {
			logger.Debug("ip limiters removed", zap.Int("count", n))
		}
	}

	rooms, participants := r.Rooms.Stats()
	r.Metrics.SetRooms(rooms)
	logger.Debug("room cleanup done",
		zap.Int("evicted", len(evicted)),
		zap.Int("rooms", rooms),
		zap.Int("participants", participants),
	)
}

// FlushCanvas: writes dirty canvas snapshots to the store
func (r *Runner) FlushCanvas(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, flushTimeout)
	defer cancel()

	if err := r.Cache.Flush(ctx); err != nil {
		r.Metrics.RecordFlushError()
		r.logger().Error("canvas flush failed", zap.Error(err), zap.Int("dirty", r.Cache.Dirty()))
		return err
	}
	return nil
}

// Schedule: registers the jobs on a new scheduler. The caller starts and
// stops it. An empty spec leaves that job out.
func (r *Runner) Schedule(cleanupSpec, flushSpec string) (*cron.Cron, error) {
	c := cron.New(
		cron.WithParser(parser),
		cron.WithChain(cron.Recover(cron.DiscardLogger), cron.SkipIfStillRunning(cron.DiscardLogger)),
	)

	if cleanupSpec != "" {
		if _, err := c.AddFunc(cleanupSpec, r.CleanupRooms); err != nil {
			return nil, fmt.Errorf("room cleanup schedule %q: %w", cleanupSpec, err)
		}
	}
	if flushSpec != "" {
		if _, err := c.AddFunc(flushSpec, func() { _ = r.FlushCanvas(context.Background()) }); err != nil {
			return nil, fmt.Errorf("canvas flush schedule %q: %w", flushSpec, err)
		}
	}
	return c, nil
}

func (r *Runner) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}
