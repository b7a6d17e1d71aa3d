package runtime

import (
	"chat-relay/domain"
	"chat-relay/mocks"
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestReconciler_Run_ClearsUnbackedOnlineRecords(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	users := mocks.NewMockIUserRepository(ctrl)
	registry := NewRegistry()
	now := time.Date(2026, 3, 3, 8, 0, 0, 0, time.UTC)

	reconciler := NewReconciler(log, registry, users)
	reconciler.now = fixedClock(now)

	// Given two users stored online, one of them really connected
	ghost := domain.User{ID: uuid.NewString(), Presence: domain.Presence{Online: true}}
	live := domain.User{ID: uuid.NewString(), Presence: domain.Presence{Online: true}}
	registry.Register(live.ID, newRecorder(live.ID))

	users.EXPECT().ListOnline(gomock.Any()).Return([]domain.User{ghost, live}, nil)
	users.EXPECT().
		UpdatePresence(gomock.Any(), ghost.ID, domain.Presence{Online: false, LastSeen: now}).
		Return(nil)

	// When reconciliation runs
	cleared, err := reconciler.Run(context.Background())

	// Then only the ghost is marked offline
	req.NoError(err)
	req.Equal(1, cleared)
}

func TestReconciler_Run_ContinuesAfterWriteFailure(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	users := mocks.NewMockIUserRepository(ctrl)
	reconciler := NewReconciler(log, NewRegistry(), users)

	first := domain.User{ID: uuid.NewString()}
	second := domain.User{ID: uuid.NewString()}
	users.EXPECT().ListOnline(gomock.Any()).Return([]domain.User{first, second}, nil)
	users.EXPECT().UpdatePresence(gomock.Any(), first.ID, gomock.Any()).Return(fmt.Errorf("conflict"))
	users.EXPECT().UpdatePresence(gomock.Any(), second.ID, gomock.Any()).Return(nil)

	cleared, err := reconciler.Run(context.Background())

	req.NoError(err)
	req.Equal(1, cleared)
}

func TestReconciler_Run_ListFailure(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	users := mocks.NewMockIUserRepository(ctrl)
	reconciler := NewReconciler(log, NewRegistry(), users)

	users.EXPECT().ListOnline(gomock.Any()).Return(nil, fmt.Errorf("closed"))

	_, err := reconciler.Run(context.Background())
	req.Error(err)
}
