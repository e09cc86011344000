package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const defaultMongoTimeout = 10 * time.Second

// MongoConfig describes the document store connection.
type MongoConfig struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
}

// ConnectMongo dials MongoDB, verifies the primary is reachable and returns the client and database handle.
func ConnectMongo(ctx context.Context, cfg MongoConfig) (*mongo.Client, *mongo.Database, error) {
	uri := strings.TrimSpace(cfg.URI)
	if uri == "" {
		return nil, nil, errors.New("database: mongo uri is required")
	}
	name := strings.TrimSpace(cfg.Database)
	if name == "" {
		return nil, nil, errors.New("database: mongo database name is required")
	}

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultMongoTimeout
	}

	opts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(timeout).
		SetServerSelectionTimeout(timeout)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("database: mongo connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("database: mongo ping: %w", err)
	}

	return client, client.Database(name), nil
}
