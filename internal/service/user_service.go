package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"github.com/aditya2785/web-chat/internal/auth"
	"github.com/aditya2785/web-chat/internal/media"
	"github.com/aditya2785/web-chat/internal/model"
	"github.com/aditya2785/web-chat/internal/repo"
)

var (
	ErrMissingDetails     = errors.New("missing details")
	ErrEmailTaken         = errors.New("account already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSelfDelete         = errors.New("cannot delete your own admin account")
)

// AuthResult is what signup and login hand back: the user plus a token that
// binds subsequent requests and realtime connections to their id.
type AuthResult struct {
	User  *model.User
	Token string
}

type UserService interface {
	Signup(ctx context.Context, fullName, email, password, bio string) (*AuthResult, error)
	Login(ctx context.Context, email, password string) (*AuthResult, error)
	GetUser(ctx context.Context, id string) (*model.User, error)
	UpdateProfile(ctx context.Context, id, fullName, bio, profilePic string) (*model.User, error)
	// DeleteUser removes target on behalf of an admin actor. An admin can
	// never delete their own account.
	DeleteUser(ctx context.Context, actorID, targetID string) error
}

type userService struct {
	users  repo.UserRepository
	tokens *auth.TokenService
	media  media.Storage
	logger *zap.Logger
}

func NewUserService(users repo.UserRepository, tokens *auth.TokenService, mediaStore media.Storage, logger *zap.Logger) UserService {
	return &userService{
		users:  users,
		tokens: tokens,
		media:  mediaStore,
		logger: logger,
	}
}

func (s *userService) Signup(ctx context.Context, fullName, email, password, bio string) (*AuthResult, error) {
	if fullName == "" || email == "" || password == "" || bio == "" {
		return nil, ErrMissingDetails
	}

	if _, err := s.users.GetUserByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, repo.ErrUserNotFound) {
		return nil, err
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.users.CreateUser(ctx, &model.User{
		FullName:  fullName,
		Email:     email,
		Password:  hash,
		Bio:       bio,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	token, err := s.tokens.GenerateToken(user.ID.Hex(), user.IsAdmin)
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}

	s.logger.Info("user signed up", zap.String("user_id", user.ID.Hex()))
	return &AuthResult{User: user, Token: token}, nil
}

func (s *userService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !auth.CheckPassword(user.Password, password) {
		return nil, ErrInvalidCredentials
	}

	token, err := s.tokens.GenerateToken(user.ID.Hex(), user.IsAdmin)
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}

	return &AuthResult{User: user, Token: token}, nil
}

func (s *userService) GetUser(ctx context.Context, id string) (*model.User, error) {
	return s.users.GetUserByID(ctx, id)
}

func (s *userService) UpdateProfile(ctx context.Context, id, fullName, bio, profilePic string) (*model.User, error) {
	update := bson.M{}
	if fullName != "" {
		update["fullName"] = fullName
	}
	if bio != "" {
		update["bio"] = bio
	}

	if profilePic != "" {
		pic := profilePic
		if strings.HasPrefix(pic, "data:") {
			url, err := s.media.SaveImage(ctx, pic)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrValidation, err)
			}
			pic = url
		}
		update["profilePic"] = pic
	}

	if len(update) == 0 {
		return s.users.GetUserByID(ctx, id)
	}
	return s.users.UpdateUser(ctx, id, update)
}

func (s *userService) DeleteUser(ctx context.Context, actorID, targetID string) error {
	if actorID == targetID {
		return ErrSelfDelete
	}

	if _, err := s.users.GetUserByID(ctx, targetID); err != nil {
		return err
	}
	return s.users.DeleteUser(ctx, targetID)
}
