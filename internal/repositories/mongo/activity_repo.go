package mongo

import (
	"context"
	"time"

	"github.com/yoockh/launchkit/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ActivityFilter selects entries for the admin feed. Zero fields match all.
type ActivityFilter struct {
	UserID string
	Kind   models.ActivityKind
	Limit  int64
}

type ActivityRepository interface {
	Insert(ctx context.Context, a *models.Activity) error
	Recent(ctx context.Context, f ActivityFilter) ([]models.Activity, error)
}

type activityRepo struct {
	col *mongo.Collection
}

func NewActivityRepo(db *mongo.Database) ActivityRepository {
	return &activityRepo{col: db.Collection("activity")}
}

func (r *activityRepo) Insert(ctx context.Context, a *models.Activity) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := r.col.InsertOne(ctx, a)
	return err
}

func (r *activityRepo) Recent(ctx context.Context, f ActivityFilter) ([]models.Activity, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	filter := bson.M{}
	if f.UserID != "" {
		filter["user_id"] = f.UserID
	}
	if f.Kind != "" {
		filter["kind"] = f.Kind
	}

	cur, err := r.col.Find(ctx, filter,
		options.Find().
			SetSort(bson.D{{Key: "created_at", Value: -1}}).
			SetLimit(f.Limit),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []models.Activity{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
