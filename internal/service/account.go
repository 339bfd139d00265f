package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/accounts/internal/auth"
	"github.com/utafrali/accounts/internal/domain"
	"github.com/utafrali/accounts/internal/repository"
	apperrors "github.com/utafrali/accounts/pkg/errors"
	"github.com/utafrali/accounts/pkg/pagination"
)

// AccountService implements signup, profile and user administration.
type AccountService struct {
	users  repository.UserRepository
	hasher *auth.PasswordHasher
	events EventPublisher
	logger *slog.Logger
	now    func() time.Time
}

// NewAccountService creates an account service.
func NewAccountService(
	users repository.UserRepository,
	hasher *auth.PasswordHasher,
	events EventPublisher,
	logger *slog.Logger,
) *AccountService {
	return &AccountService{
		users:  users,
		hasher: hasher,
		events: events,
		logger: logger,
		now:    time.Now,
	}
}

// RegisterInput holds the parameters for creating an account.
type RegisterInput struct {
	Username    string
	Email       string
	Password    string
	FirstName   string
	LastName    string
	CountryName string
	PhoneNumber string
	DateOfBirth *time.Time
}

// UpdateProfileInput holds the profile fields a user may change. Nil fields
// are left as they are.
type UpdateProfileInput struct {
	Email       *string
	FirstName   *string
	LastName    *string
	CountryName *string
	PhoneNumber *string
	DateOfBirth *time.Time
}

// AdminUpdateInput extends a profile update with the fields only
// administrators may change.
type AdminUpdateInput struct {
	UpdateProfileInput
	Username *string
	Role     *domain.Role
}

// Register creates an account with role user. Duplicate usernames or emails
// fail with a conflict before anything is written.
func (s *AccountService) Register(ctx context.Context, input RegisterInput) (*domain.User, error) {
	input.Username = domain.NormalizeUsername(input.Username)
	input.Email = domain.NormalizeEmail(input.Email)

	switch {
	case input.Username == "":
		return nil, apperrors.InvalidInput("username is required")
	case input.Email == "":
		return nil, apperrors.InvalidInput("email is required")
	case input.Password == "":
		return nil, apperrors.InvalidInput("password is required")
	case input.FirstName == "":
		return nil, apperrors.InvalidInput("first name is required")
	case input.LastName == "":
		return nil, apperrors.InvalidInput("last name is required")
	}

	exists, err := s.users.ExistsByUsernameOrEmail(ctx, input.Username, input.Email)
	if err != nil {
		return nil, fmt.Errorf("check existing user: %w", err)
	}
	if exists {
		return nil, apperrors.Conflict("username or email already in use")
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	user := &domain.User{
		ID:           uuid.New().String(),
		Username:     input.Username,
		Email:        input.Email,
		FirstName:    input.FirstName,
		LastName:     input.LastName,
		CountryName:  input.CountryName,
		PhoneNumber:  input.PhoneNumber,
		DateOfBirth:  input.DateOfBirth,
		Role:         domain.RoleUser,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	if err := s.events.UserRegistered(ctx, user); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish user.registered event",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "user registered",
		slog.String("user_id", user.ID),
		slog.String("username", user.Username),
	)

	return user, nil
}

// GetUser returns the account with the given id.
func (s *AccountService) GetUser(ctx context.Context, id string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, id)
	}
	return user, nil
}

// UpdateProfile applies a user's own profile changes.
func (s *AccountService) UpdateProfile(ctx context.Context, id string, input UpdateProfileInput) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, id)
	}

	if err := applyProfile(user, input); err != nil {
		return nil, err
	}
	return s.save(ctx, user)
}

// AdminUpdate applies changes made by an administrator. Only a superadmin may
// change a role.
func (s *AccountService) AdminUpdate(ctx context.Context, actor auth.Principal, id string, input AdminUpdateInput) (*domain.User, error) {
	if input.Role != nil {
		if actor.Role != domain.RoleSuperAdmin {
			return nil, apperrors.Forbidden("only a superadmin may change roles")
		}
		if !input.Role.Valid() {
			return nil, apperrors.InvalidInput(fmt.Sprintf("unknown role %q", *input.Role))
		}
	}

	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, id)
	}

	if err := applyProfile(user, input.UpdateProfileInput); err != nil {
		return nil, err
	}
	if input.Username != nil {
		username := domain.NormalizeUsername(*input.Username)
		if username == "" {
			return nil, apperrors.InvalidInput("username must not be empty")
		}
		user.Username = username
	}
	if input.Role != nil {
		user.Role = *input.Role
	}

	updated, err := s.save(ctx, user)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "user updated by admin",
		slog.String("user_id", id),
		slog.String("actor_id", actor.UserID),
	)
	return updated, nil
}

// DeleteUser removes the account and with it the stored refresh token.
func (s *AccountService) DeleteUser(ctx context.Context, id string) error {
	if err := s.users.Delete(ctx, id); err != nil {
		return notFound(err, id)
	}

	if err := s.events.UserDeleted(ctx, id); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish user.deleted event",
			slog.String("user_id", id),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "user deleted", slog.String("user_id", id))
	return nil
}

// ListUsers returns one page of accounts, oldest first.
func (s *AccountService) ListUsers(ctx context.Context, p pagination.Params) (pagination.Result[domain.User], error) {
	users, total, err := s.users.List(ctx, p.Offset(), p.PerPage)
	if err != nil {
		return pagination.Result[domain.User]{}, fmt.Errorf("list users: %w", err)
	}
	return pagination.NewResult(users, total, p), nil
}

// LookupUser finds an account by username or email. At least one is required.
func (s *AccountService) LookupUser(ctx context.Context, username, email string) (*domain.User, error) {
	username = domain.NormalizeUsername(username)
	email = domain.NormalizeEmail(email)
	if username == "" && email == "" {
		return nil, apperrors.InvalidInput("username or email is required")
	}

	user, err := s.users.FindByUsernameOrEmail(ctx, username, email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			key := username
			if key == "" {
				key = email
			}
			return nil, apperrors.NotFound("user", key)
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	return user, nil
}

func (s *AccountService) save(ctx context.Context, user *domain.User) (*domain.User, error) {
	user.UpdatedAt = s.now().UTC()
	if err := s.users.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}

	if err := s.events.UserUpdated(ctx, user); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish user.updated event",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}
	return user, nil
}

func applyProfile(user *domain.User, input UpdateProfileInput) error {
	if input.Email != nil {
		email := domain.NormalizeEmail(*input.Email)
		if email == "" {
			return apperrors.InvalidInput("email must not be empty")
		}
		user.Email = email
	}
	if input.FirstName != nil {
		if *input.FirstName == "" {
			return apperrors.InvalidInput("first name must not be empty")
		}
		user.FirstName = *input.FirstName
	}
	if input.LastName != nil {
		if *input.LastName == "" {
			return apperrors.InvalidInput("last name must not be empty")
		}
		user.LastName = *input.LastName
	}
	if input.CountryName != nil {
		user.CountryName = *input.CountryName
	}
	if input.PhoneNumber != nil {
		user.PhoneNumber = *input.PhoneNumber
	}
	if input.DateOfBirth != nil {
		user.DateOfBirth = input.DateOfBirth
	}
	return nil
}

// notFound turns a bare store miss into a 404 naming the user.
func notFound(err error, id string) error {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, apperrors.ErrNotFound) {
		return apperrors.NotFound("user", id)
	}
	return fmt.Errorf("user %s: %w", id, err)
}
