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

// コレクション名
const (
	usersCollection    = "users"
	sessionsCollection = "sessions"
)

// mongoUser はusersコレクションのドキュメント。
type mongoUser struct {
	ID          string    `bson:"_id"`
	ProviderID  string    `bson:"provider_id"`
	DisplayName string    `bson:"display_name"`
	Email       string    `bson:"email"`
	AvatarURL   string    `bson:"avatar_url"`
	CreatedAt   time.Time `bson:"created_at"`
}

func (d *mongoUser) toModel() *model.User {
	return &model.User{
		ID:          d.ID,
		ProviderID:  d.ProviderID,
		DisplayName: d.DisplayName,
		Email:       d.Email,
		AvatarURL:   d.AvatarURL,
		CreatedAt:   d.CreatedAt,
	}
}

// MongoUserRepo はMongoDBを使用したユーザーリポジトリ。
// provider_idの一意性はEnsureMongoIndexesで作成するユニークインデックスで保証する。
type MongoUserRepo struct {
	coll *mongo.Collection
}

// NewMongoUserRepo はMongoUserRepoを生成する。
func NewMongoUserRepo(db *mongo.Database) *MongoUserRepo {
	return &MongoUserRepo{coll: db.Collection(usersCollection)}
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *MongoUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	user, err := r.findOne(ctx, bson.M{"_id": id})
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return user, nil
}

// FindByProviderID はprovider_idでユーザーを検索する。見つからない場合はnilを返す。
func (r *MongoUserRepo) FindByProviderID(ctx context.Context, providerID string) (*model.User, error) {
	user, err := r.findOne(ctx, bson.M{"provider_id": providerID})
	if err != nil {
		return nil, fmt.Errorf("failed to find user by provider ID: %w", err)
	}
	return user, nil
}

func (r *MongoUserRepo) findOne(ctx context.Context, filter bson.M) (*model.User, error) {
	var doc mongoUser
	err := r.coll.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return doc.toModel(), nil
}

// Create はユーザーを作成する。
// 重複キーエラーは model.ErrDuplicateProviderID に変換する。
func (r *MongoUserRepo) Create(ctx context.Context, user *model.User) error {
	_, err := r.coll.InsertOne(ctx, mongoUser{
		ID:          user.ID,
		ProviderID:  user.ProviderID,
		DisplayName: user.DisplayName,
		Email:       user.Email,
		AvatarURL:   user.AvatarURL,
		CreatedAt:   user.CreatedAt,
	})
	if mongo.IsDuplicateKeyError(err) {
		return model.ErrDuplicateProviderID
	}
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// compile-time interface check
var _ UserRepository = (*MongoUserRepo)(nil)
