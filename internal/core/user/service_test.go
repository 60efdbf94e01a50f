package user

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRepository struct {
	created *User
	byID    map[uuid.UUID]*User
}

func (r *stubRepository) CreateUser(_ context.Context, name, interests string) (*User, error) {
	r.created = &User{
		ID:        uuid.New(),
		Name:      name,
		Interests: interests,
		CreatedAt: time.Now(),
	}
	return r.created, nil
}

func (r *stubRepository) GetUser(_ context.Context, id uuid.UUID) (*User, error) {
	if u, ok := r.byID[id]; ok {
		return u, nil
	}
	return nil, ErrUserNotFound
}

func (r *stubRepository) IncrementMessageCount(_ context.Context, _ uuid.UUID) (int, error) {
	return 0, nil
}

func (r *stubRepository) RecordChatTurn(_ context.Context, _ uuid.UUID, _, _ string) error {
	return nil
}

func TestOnboardTrimsAndStores(t *testing.T) {
	repo := &stubRepository{}
	service := NewService(repo)

	u, err := service.Onboard(context.Background(), "  Alice  ", " search systems ")
	require.NoError(t, err)

	assert.Equal(t, "Alice", u.Name)
	assert.Equal(t, "search systems", u.Interests)
	assert.Equal(t, 0, u.MessageCount)
}

func TestOnboardRequiresName(t *testing.T) {
	service := NewService(&stubRepository{})

	_, err := service.Onboard(context.Background(), "   ", "anything")
	assert.ErrorContains(t, err, "name is required")
}

func TestGetUnknownUser(t *testing.T) {
	service := NewService(&stubRepository{byID: map[uuid.UUID]*User{}})

	_, err := service.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrUserNotFound)
}
