package config

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	MongoClient *mongo.Client
	mongoDBName = "launchkit"
)

// InitMongo connects the activity-log store.
func InitMongo(s Settings) error {
	if s.MongoURI == "" {
		return errors.New("MONGO_URI environment variable is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(s.MongoURI).
		SetServerSelectionTimeout(10*time.Second).
		SetConnectTimeout(10*time.Second).
		SetMaxPoolSize(10))
	if err != nil {
		return err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return err
	}

	if s.MongoDB != "" {
		mongoDBName = s.MongoDB
	}
	MongoClient = client
	return nil
}

// MongoDatabase returns the database named by MONGO_DB.
func MongoDatabase() *mongo.Database {
	return MongoClient.Database(mongoDBName)
}
