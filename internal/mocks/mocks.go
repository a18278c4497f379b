package mocks

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"studygroup-chat/internal/models"
)

type BackendMock struct {
	mock.Mock
}

func (m *BackendMock) ListGroups(ctx context.Context, token string) ([]models.Group, error) {
	args := m.Called(ctx, token)
	var groups []models.Group
	if val := args.Get(0); val != nil {
		groups = val.([]models.Group)
	}
	return groups, args.Error(1)
}

func (m *BackendMock) GroupMembers(ctx context.Context, token, groupID string) ([]models.Member, error) {
	args := m.Called(ctx, token, groupID)
	var members []models.Member
	if val := args.Get(0); val != nil {
		members = val.([]models.Member)
	}
	return members, args.Error(1)
}

func (m *BackendMock) History(ctx context.Context, token, groupID string, page, size int) ([]models.Message, error) {
	args := m.Called(ctx, token, groupID, page, size)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *BackendMock) UploadFile(ctx context.Context, token, name string, content io.Reader) (models.FileMeta, error) {
	args := m.Called(ctx, token, name, content)
	var meta models.FileMeta
	if val := args.Get(0); val != nil {
		meta = val.(models.FileMeta)
	}
	return meta, args.Error(1)
}

type SessionRepositoryMock struct {
	mock.Mock
}

func (m *SessionRepositoryMock) Load(ctx context.Context) (models.Identity, error) {
	args := m.Called(ctx)
	var identity models.Identity
	if val := args.Get(0); val != nil {
		identity = val.(models.Identity)
	}
	return identity, args.Error(1)
}

func (m *SessionRepositoryMock) Save(ctx context.Context, identity models.Identity) error {
	args := m.Called(ctx, identity)
	return args.Error(0)
}

func (m *SessionRepositoryMock) Clear(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type SnapshotRepositoryMock struct {
	mock.Mock
}

func (m *SnapshotRepositoryMock) Save(ctx context.Context, groupID string, msgs []models.Message) error {
	args := m.Called(ctx, groupID, msgs)
	return args.Error(0)
}

func (m *SnapshotRepositoryMock) Load(ctx context.Context, groupID string) ([]models.Message, error) {
	args := m.Called(ctx, groupID)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}
