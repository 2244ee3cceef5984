package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/hitoshi/authgate/internal/model"
)

// mongoSession はsessionsコレクションのドキュメント。_idはセッショントークン。
type mongoSession struct {
	ID        string    `bson:"_id"`
	UserID    string    `bson:"user_id"`
	ExpiresAt time.Time `bson:"expires_at"`
	CreatedAt time.Time `bson:"created_at"`
}

// MongoSessionRepo はMongoDBを使用したセッションリポジトリ。
// 期限切れドキュメントはexpires_atのTTLインデックスでサーバー側でも削除される。
type MongoSessionRepo struct {
	coll *mongo.Collection
	now  func() time.Time
}

// NewMongoSessionRepo はMongoSessionRepoを生成する。
func NewMongoSessionRepo(db *mongo.Database) *MongoSessionRepo {
	return &MongoSessionRepo{
		coll: db.Collection(sessionsCollection),
		now:  time.Now,
	}
}

// Create はセッションを作成する。
func (r *MongoSessionRepo) Create(ctx context.Context, session *model.Session) error {
	_, err := r.coll.InsertOne(ctx, mongoSession{
		ID:        session.ID,
		UserID:    session.UserID,
		ExpiresAt: session.ExpiresAt,
		CreatedAt: session.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
// TTLモニタの削除は最大60秒遅れるため、expires_atでも絞り込む。
func (r *MongoSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	var doc mongoSession
	err := r.coll.FindOne(ctx, bson.M{
		"_id":        id,
		"expires_at": bson.M{"$gt": r.now()},
	}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}

	return &model.Session{
		ID:        doc.ID,
		UserID:    doc.UserID,
		ExpiresAt: doc.ExpiresAt,
		CreatedAt: doc.CreatedAt,
	}, nil
}

// DeleteByID は指定IDのセッションを削除する。
func (r *MongoSessionRepo) DeleteByID(ctx context.Context, id string) error {
	if _, err := r.coll.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteExpired は期限切れセッションを一括削除する。
func (r *MongoSessionRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.coll.DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lte": now}})
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return res.DeletedCount, nil
}

// compile-time interface check
var _ SessionRepository = (*MongoSessionRepo)(nil)
