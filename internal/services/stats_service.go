package services

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yoockh/launchkit/internal/cache"
	"github.com/yoockh/launchkit/internal/models"
	pgrepo "github.com/yoockh/launchkit/internal/repositories/postgres"
	"github.com/yoockh/launchkit/internal/utils"
)

const statsTTL = time.Minute

type StatsService interface {
	// UserStats degrades to zeros when the store is unavailable.
	UserStats(ctx context.Context) models.UserStats
	AdminStats(ctx context.Context) (*models.UserStats, error)
}

type statsService struct {
	profiles pgrepo.ProfileRepository
	cache    cache.Cache
	log      logrus.FieldLogger
	now      func() time.Time
}

func NewStatsService(profiles pgrepo.ProfileRepository, c cache.Cache, log logrus.FieldLogger) StatsService {
	return &statsService{profiles: profiles, cache: c, log: log, now: time.Now}
}

func (s *statsService) UserStats(ctx context.Context) models.UserStats {
	st, err := cache.Remember(ctx, s.cache, "stats:user", statsTTL, func(ctx context.Context) (models.UserStats, error) {
		return s.compute(ctx, false)
	})
	if err != nil {
		s.log.WithError(err).Warn("user stats unavailable")
		return models.UserStats{}
	}
	return st
}

func (s *statsService) AdminStats(ctx context.Context) (*models.UserStats, error) {
	const op = "StatsService.AdminStats"

	st, err := cache.Remember(ctx, s.cache, "stats:admin", statsTTL, func(ctx context.Context) (models.UserStats, error) {
		return s.compute(ctx, true)
	})
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to compute stats", err)
	}
	return &st, nil
}

// compute counts profiles. Active today means the profile changed since
// midnight UTC.
func (s *statsService) compute(ctx context.Context, withMonth bool) (models.UserStats, error) {
	now := s.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	var st models.UserStats
	var err error
	if st.TotalUsers, err = s.profiles.Count(ctx); err != nil {
		return st, err
	}
	if st.NewUsersThisWeek, err = s.profiles.CountCreatedSince(ctx, now.AddDate(0, 0, -7)); err != nil {
		return st, err
	}
	if st.ActiveUsersToday, err = s.profiles.CountUpdatedSince(ctx, today); err != nil {
		return st, err
	}
	if withMonth {
		month := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		if st.NewUsersThisMonth, err = s.profiles.CountCreatedSince(ctx, month); err != nil {
			return st, err
		}
	}
	return st, nil
}
