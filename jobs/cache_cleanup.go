package jobs

import (
	"github.com/fenilmodi00/ipo-allotment/services"
	"github.com/sirupsen/logrus"
)

// CacheCleanupJob purges allotment results older than the cache TTL
type CacheCleanupJob struct {
	Cache *services.AllotmentCache
}

func NewCacheCleanupJob(cache *services.AllotmentCache) *CacheCleanupJob {
	return &CacheCleanupJob{Cache: cache}
}

func (j *CacheCleanupJob) Name() string {
	return "cache_cleanup"
}

func (j *CacheCleanupJob) Run() {
	logrus.Info("Starting Cache Cleanup Job")

	removed := j.Cache.CleanupExpired()

	logrus.WithFields(logrus.Fields{
		"removed":   removed,
		"remaining": j.Cache.Size(),
	}).Info("Cache Cleanup Job completed")
}
