package repo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/aditya2785/web-chat/internal/db"
	"github.com/aditya2785/web-chat/internal/model"
)

var ErrUserNotFound = errors.New("user not found")

type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) (*model.User, error)
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	// ListUsersExcept returns every user except the one with the given id.
	ListUsersExcept(ctx context.Context, id string) ([]model.User, error)
	UpdateUser(ctx context.Context, id string, update bson.M) (*model.User, error)
	DeleteUser(ctx context.Context, id string) error
}

type userRepository struct {
	mongoRepo *db.Repository[model.User]
	logger    *zap.Logger
}

func NewUserRepository(repo *db.Repository[model.User], logger *zap.Logger) UserRepository {
	return &userRepository{
		mongoRepo: repo,
		logger:    logger,
	}
}

func (r *userRepository) CreateUser(ctx context.Context, user *model.User) (*model.User, error) {
	result, err := r.mongoRepo.Create(ctx, *user)
	if err != nil {
		return nil, fmt.Errorf("create user failed: %w", err)
	}
	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		user.ID = oid
	}
	return user, nil
}

func (r *userRepository) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	user, err := r.mongoRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user failed: %w", err)
	}
	return user, nil
}

func (r *userRepository) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	user, err := r.mongoRepo.FindOne(ctx, db.NewFilter().Eq("email", email).Build())
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user by email failed: %w", err)
	}
	return user, nil
}

func (r *userRepository) ListUsersExcept(ctx context.Context, id string) ([]model.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("invalid user id %q: %w", id, err)
	}

	users, err := r.mongoRepo.FindAll(ctx, db.NewFilter().Ne("_id", oid).Build())
	if err != nil {
		return nil, fmt.Errorf("list users failed: %w", err)
	}
	return users, nil
}

func (r *userRepository) UpdateUser(ctx context.Context, id string, update bson.M) (*model.User, error) {
	if _, err := r.mongoRepo.UpdateByID(ctx, id, update); err != nil {
		return nil, fmt.Errorf("update user failed: %w", err)
	}
	return r.GetUserByID(ctx, id)
}

func (r *userRepository) DeleteUser(ctx context.Context, id string) error {
	result, err := r.mongoRepo.DeleteByID(ctx, id)
	if err != nil {
		return fmt.Errorf("delete user failed: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrUserNotFound
	}

	r.logger.Info("user deleted", zap.String("user_id", id))
	return nil
}
