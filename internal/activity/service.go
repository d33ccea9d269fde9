package activity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/agentplan/apiserver/types"
)

const (
	defaultCommitLimit = 5
	maxCommitLimit     = 20
)

// Service serves the commit-history widget. Successful fetches refresh
// the cache; upstream failures degrade to the cached feed marked stale
// and only error when no cache exists at all.
type Service struct {
	client *Client
	cache  *Cache
	logger *zap.Logger

	versionMu sync.Mutex
	version   types.AppVersion
	versionAt time.Time
	ttl       time.Duration
}

func NewService(client *Client, cache *Cache, ttl time.Duration, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{client: client, cache: cache, logger: logger, ttl: ttl}
}

// Commits returns the latest commits, serving from cache while fresh.
func (s *Service) Commits(ctx context.Context, limit int) (types.CommitFeed, error) {
	if limit <= 0 {
		limit = defaultCommitLimit
	}
	if limit > maxCommitLimit {
		limit = maxCommitLimit
	}

	if feed, stale, ok := s.cache.Get(); ok && !stale {
		return feed, nil
	}

	commits, err := s.client.FetchCommits(ctx, limit)
	if err != nil {
		if feed, _, ok := s.cache.Get(); ok {
			s.logger.Warn("commit fetch failed, serving stale cache", zap.Error(err))
			feed.Stale = true
			return feed, nil
		}
		return types.CommitFeed{}, fmt.Errorf("failed to fetch commits: %w", err)
	}

	feed := types.CommitFeed{Commits: commits, TotalCount: len(commits)}
	s.cache.Set(feed)
	return feed, nil
}

// Version derives the app version from the total commit count. The
// count is refreshed on the same TTL as the commit feed.
func (s *Service) Version(ctx context.Context) (types.AppVersion, error) {
	s.versionMu.Lock()
	defer s.versionMu.Unlock()

	if !s.versionAt.IsZero() && time.Since(s.versionAt) <= s.ttl {
		return s.version, nil
	}

	count, err := s.client.TotalCommitCount(ctx)
	if err != nil {
		if !s.versionAt.IsZero() {
			s.logger.Warn("commit count fetch failed, serving cached version", zap.Error(err))
			return s.version, nil
		}
		return types.AppVersion{}, fmt.Errorf("failed to count commits: %w", err)
	}

	s.version = VersionFromCommitCount(count)
	s.versionAt = time.Now()
	return s.version, nil
}

// VersionFromCommitCount maps a commit count onto a display version.
// Every 100 commits bump the major, every 10 the minor (1-based), and
// the remainder is the patch.
func VersionFromCommitCount(count int) types.AppVersion {
	major := count / 100
	minor := (count%100)/10 + 1
	patch := count % 10
	return types.AppVersion{
		Major:   major,
		Minor:   minor,
		Patch:   patch,
		Display: fmt.Sprintf("%d.%d.%d", major, minor, patch),
	}
}
