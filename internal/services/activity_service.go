package services

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/yoockh/launchkit/internal/models"
	mongorepo "github.com/yoockh/launchkit/internal/repositories/mongo"
	"github.com/yoockh/launchkit/internal/utils"
)

const (
	DefaultActivityLimit = 50
	MaxActivityLimit     = 200
)

type ActivityService interface {
	// Record stores a as best effort. Failures are logged, never returned.
	Record(ctx context.Context, a models.Activity)
	Recent(ctx context.Context, limit int) ([]models.Activity, error)
}

type activityService struct {
	repo mongorepo.ActivityRepository
	log  logrus.FieldLogger
}

func NewActivityService(repo mongorepo.ActivityRepository, log logrus.FieldLogger) ActivityService {
	return &activityService{repo: repo, log: log}
}

func (s *activityService) Record(ctx context.Context, a models.Activity) {
	if s.repo == nil {
		return
	}
	if err := s.repo.Insert(ctx, &a); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"kind":    a.Kind,
			"user_id": a.UserID,
		}).Warn("failed to record activity")
	}
}

func (s *activityService) Recent(ctx context.Context, limit int) ([]models.Activity, error) {
	const op = "ActivityService.Recent"

	if limit < 0 || limit > MaxActivityLimit {
		return nil, utils.E(utils.CodeInvalidArgument, op, "limit must be between 1 and 200", nil)
	}
	if limit == 0 {
		limit = DefaultActivityLimit
	}
	if s.repo == nil {
		return []models.Activity{}, nil
	}

	out, err := s.repo.Recent(ctx, mongorepo.ActivityFilter{Limit: int64(limit)})
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to load activity", err)
	}
	if out == nil {
		out = []models.Activity{}
	}
	return out, nil
}
