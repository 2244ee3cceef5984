package repository

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// EnsureMongoIndexes はusers/sessionsコレクションに必要なインデックスを作成する。
// 既存のインデックスと同一定義であれば何もしないため、起動のたびに呼んでよい。
//
//   - users.provider_id: ユニーク
//   - sessions.expires_at: TTL（expireAfterSeconds=0）
//   - sessions.user_id
func EnsureMongoIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(usersCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "provider_id", Value: 1}},
		Options: options.Index().SetName("users_provider_id_key").SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create users index: %w", err)
	}

	_, err = db.Collection(sessionsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetName("sessions_expires_at_ttl").SetExpireAfterSeconds(0),
		},
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index().SetName("sessions_user_id_idx"),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create sessions indexes: %w", err)
	}

	return nil
}
