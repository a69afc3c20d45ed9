package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestServiceRunsRegisteredJobOnSchedule(t *testing.T) {
	s := NewService()
	ran := make(chan struct{}, 1)

	err := s.Register(context.Background(), Job{
		Name:     "every-second",
		Schedule: "@every 1s",
		Run: func(ctx context.Context) error {
			select {
			case ran <- struct{}{}:
			default:
			}
			return nil
		},
	})
	require.NoError(t, err)

	s.Start()
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Stop(stopCtx)
	}()

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("expected job to run within 2s")
	}
}

func TestServiceStopIsIdempotentWithoutStart(t *testing.T) {
	s := NewService()
	require.NoError(t, s.Stop(context.Background()))
}
