package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	domain "github.com/mohammadpnp/alumni-import/internal/domain/alumni"
)

const (
	collegeKeyPrefix  = "alumni:college-context:"
	defaultContextTTL = 5 * time.Minute
)

type cachedCollege struct {
	College domain.College  `json:"college"`
	Courses []domain.Course `json:"courses"`
}

// CollegeContextCache keeps the college and its courses in Redis. Year bounds are recomputed on
// every read so a cached entry never carries a stale "now". Redis failures fall through to the
// wrapped repository.
type CollegeContextCache struct {
	next   domain.CollegeRepository
	rdb    goredis.Cmdable
	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger
}

func NewCollegeContextCache(next domain.CollegeRepository, rdb goredis.Cmdable, ttl time.Duration, logger *zap.Logger) *CollegeContextCache {
	if ttl <= 0 {
		ttl = defaultContextTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CollegeContextCache{next: next, rdb: rdb, ttl: ttl, now: time.Now, logger: logger}
}

func (c *CollegeContextCache) LoadContext(ctx context.Context, collegeID string) (*domain.CollegeContext, error) {
	key := collegeKeyPrefix + collegeID

	payload, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var entry cachedCollege
		if err := json.Unmarshal(payload, &entry); err == nil {
			return domain.NewCollegeContext(entry.College, entry.Courses, c.now()), nil
		}
		c.logger.Warn("discarding unreadable college context", zap.String("college_id", collegeID))
	case !errors.Is(err, goredis.Nil):
		c.logger.Warn("college context cache read failed", zap.String("college_id", collegeID), zap.Error(err))
	}

	cc, err := c.next.LoadContext(ctx, collegeID)
	if err != nil {
		return nil, err
	}

	payload, err = json.Marshal(cachedCollege{College: cc.College, Courses: cc.Courses})
	if err == nil {
		err = c.rdb.Set(ctx, key, payload, c.ttl).Err()
	}
	if err != nil {
		c.logger.Warn("college context cache write failed", zap.String("college_id", collegeID), zap.Error(err))
	}
	return cc, nil
}
