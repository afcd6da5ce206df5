package commands_test

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/reel/cmd/reel/commands"
	"go.trai.ch/reel/internal/adapters/logger"
	"go.trai.ch/reel/internal/adapters/telemetry"
	"go.trai.ch/reel/internal/app"
	"go.trai.ch/reel/internal/core/domain"
	"go.trai.ch/reel/internal/core/ports"
	"go.trai.ch/reel/internal/core/ports/mocks"
	"go.trai.ch/reel/internal/engine/cache"
	"go.trai.ch/reel/internal/engine/coordinator"
	"go.uber.org/mock/gomock"
)

func setupCLI(t *testing.T, ctrl *gomock.Controller, lengths ...int) *commands.CLI {
	t.Helper()

	backend := mocks.NewMockBackend(ctrl)
	backend.EXPECT().OutputCount().Return(len(lengths)).AnyTimes()
	for i, n := range lengths {
		backend.EXPECT().OutputLength(i).Return(n, nil).AnyTimes()
	}
	backend.EXPECT().Submit(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, k domain.FrameKey, _ ports.Priority) <-chan ports.RenderResult {
			ch := make(chan ports.RenderResult, 1)
			ch <- ports.RenderResult{Frame: domain.NewFrame(k, [][]byte{{byte(k.Frame)}}, nil)}
			close(ch)
			return ch
		},
	).AnyTimes()

	log := logger.New()
	log.(*logger.Logger).SetOutput(io.Discard)

	settings := domain.DefaultSettings()
	frameCache, err := cache.New(settings.CacheCapacityBytes)
	require.NoError(t, err)
	coord, err := coordinator.New(backend, frameCache, log, 0)
	require.NoError(t, err)

	session := app.NewSession(coord, settings, log, nil)
	a := app.New(session, coord, settings, log, telemetry.NewNoop(), mocks.NewMockWatcher(ctrl))
	t.Cleanup(func() { _ = a.Close() })

	return commands.New(a)
}

func TestBenchCommand(t *testing.T) {
	ctrl := gomock.NewController(t)
	cli := setupCLI(t, ctrl, 4, 2)

	var out bytes.Buffer
	cli.SetOut(&out)
	cli.SetArgs([]string{"bench"})

	require.NoError(t, cli.Execute(context.Background()))
	assert.Contains(t, out.String(), "output 0: 4 frames")
	assert.Contains(t, out.String(), "output 1: 2 frames")
}

func TestPreviewCommand_UnknownOutput(t *testing.T) {
	ctrl := gomock.NewController(t)
	cli := setupCLI(t, ctrl, 4)

	cli.SetArgs([]string{"preview", "--output", "9"})
	err := cli.Execute(context.Background())
	assert.ErrorIs(t, err, domain.ErrInvalidKey)
}

func TestVersionCommand(t *testing.T) {
	ctrl := gomock.NewController(t)
	cli := setupCLI(t, ctrl, 4)

	cli.SetArgs([]string{"version"})
	require.NoError(t, cli.Execute(context.Background()))
}

func TestUnknownCommandFails(t *testing.T) {
	ctrl := gomock.NewController(t)
	cli := setupCLI(t, ctrl, 4)

	cli.SetArgs([]string{"frobnicate"})
	assert.Error(t, cli.Execute(context.Background()))
}
