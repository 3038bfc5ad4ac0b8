package notify

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"

	"proxy-auction/internal/models"
	"proxy-auction/internal/repository/storetest"
	"proxy-auction/utils"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"
)

func TestFanout(t *testing.T) {
	t.Parallel()

	t.Run("delivers_to_every_sink", func(t *testing.T) {
		t.Parallel()
		ctrl := gomock.NewController(t)
		first, second := NewMockSink(ctrl), NewMockSink(ctrl)
		e := storetest.Event("a1", "e1", models.EventStandingChanged)

		first.EXPECT().Emit(gomock.Any(), e).Return(nil)
		second.EXPECT().Emit(gomock.Any(), e).Return(nil)

		require.NoError(t, NewFanout([]Sink{first, second}, nil).Emit(context.Background(), e))
	})

	t.Run("one_failure_does_not_stop_the_rest", func(t *testing.T) {
		t.Parallel()
		ctrl := gomock.NewController(t)
		first, second := NewMockSink(ctrl), NewMockSink(ctrl)
		e := storetest.Event("a1", "e1", models.EventOutbid)

		first.EXPECT().Emit(gomock.Any(), e).Return(errors.New("timeout"))
		first.EXPECT().Name().Return("redis").AnyTimes()
		second.EXPECT().Emit(gomock.Any(), e).Return(nil)

		err := NewFanout([]Sink{first, second}, nil).Emit(context.Background(), e)
		require.Error(t, err)
		require.Contains(t, err.Error(), "redis: timeout")
	})

	t.Run("kind_filter", func(t *testing.T) {
		t.Parallel()
		ctrl := gomock.NewController(t)
		sink := NewMockSink(ctrl)
		fanout := NewFanout([]Sink{sink}, []string{" won ", "lost"})

		won := storetest.Event("a1", "e1", models.EventWon)
		sink.EXPECT().Emit(gomock.Any(), won).Return(nil)

		require.NoError(t, fanout.Emit(context.Background(), storetest.Event("a1", "e0", models.EventStandingChanged)))
		require.NoError(t, fanout.Emit(context.Background(), won))
	})

	t.Run("name", func(t *testing.T) {
		t.Parallel()
		fanout := NewFanout([]Sink{LogSink{}, &recordSink{}}, nil)
		require.Equal(t, "fanout(log,record)", fanout.Name())
	})
}

// Not parallel: swaps the process log output.
func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	utils.SetLogOutput(&buf)
	t.Cleanup(func() { utils.SetLogOutput(os.Stdout) })

	e := storetest.Event("a1", "e1", models.EventOutbid)
	e.RecipientID = "alice"
	require.NoError(t, LogSink{}.Emit(context.Background(), e))

	require.Contains(t, buf.String(), `"msg":"auction event"`)
	require.Contains(t, buf.String(), `"event_id":"e1"`)
	require.Contains(t, buf.String(), `"recipient_id":"alice"`)
}
