package sink_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ukhas/habitat-sub001/errors"
	"github.com/ukhas/habitat-sub001/message"
	"github.com/ukhas/habitat-sub001/sink"
	"github.com/ukhas/habitat-sub001/testutil"
)

var disciplines = []sink.Discipline{sink.Inline, sink.Queued}

func newSink(t *testing.T, d sink.Discipline, h sink.Handler, opts ...sink.Option) *sink.Sink {
	t.Helper()
	s, err := sink.New("test.Sink", d, h, nil, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Shutdown() })
	return s
}

func TestNew_Rejects(t *testing.T) {
	_, err := sink.New("x.Nil", sink.Inline, nil, nil)
	require.Error(t, err)
	assert.True(t, errors.IsTypeKind(err))

	_, err = sink.New("x.Bad", sink.Discipline(0), testutil.NewRecordingHandler(), nil)
	require.Error(t, err)
	assert.True(t, errors.IsValueKind(err))

	_, err = sink.New("x.NoHandle", sink.Inline, sink.HandlerFuncs{
		SetupFunc: func(*sink.Sink) error { return nil },
	}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsValueKind(err))

	_, err = sink.New("x.NoSetup", sink.Queued, sink.HandlerFuncs{
		HandleFunc: func(*message.Message) error { return nil },
	}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsValueKind(err))
}

func TestNew_SetupFailureClosesHandler(t *testing.T) {
	for _, d := range disciplines {
		t.Run(d.String(), func(t *testing.T) {
			closed := 0
			h := sink.HandlerFuncs{
				SetupFunc:  func(*sink.Sink) error { return fmt.Errorf("no database") },
				HandleFunc: func(*message.Message) error { return nil },
				CloseFunc:  func() error { closed++; return nil },
			}
			s, err := sink.New("x.Broken", d, h, nil)
			require.Error(t, err)
			assert.Nil(t, s)
			assert.Contains(t, err.Error(), "no database")
			assert.Equal(t, 1, closed)
		})
	}
}

func TestNew_SetupPanicIsContained(t *testing.T) {
	h := sink.HandlerFuncs{
		SetupFunc:  func(*sink.Sink) error { panic("boom") },
		HandleFunc: func(*message.Message) error { return nil },
	}
	_, err := sink.New("x.Panics", sink.Inline, h, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrHandlerPanic)
}

func TestSetupReceivesSink(t *testing.T) {
	h := testutil.NewRecordingHandler(message.Telem)
	s := newSink(t, sink.Inline, h)
	assert.Same(t, s, h.Sink())
	assert.Equal(t, "test.Sink", s.Name())
	assert.Equal(t, sink.Inline, s.Discipline())
	assert.Same(t, h, s.Handler())
}

func TestInterestSet(t *testing.T) {
	s := newSink(t, sink.Inline, testutil.NewRecordingHandler())
	assert.Empty(t, s.Types())

	require.NoError(t, s.AddType(message.Telem))
	require.NoError(t, s.AddTypes(message.ReceivedTelem, message.ListenerInfo))
	assert.Equal(t, []message.Type{message.ReceivedTelem, message.ListenerInfo, message.Telem}, s.Types())
	assert.True(t, s.Wants(message.Telem))
	assert.False(t, s.Wants(message.ListenerTelem))

	require.NoError(t, s.RemoveType(message.ListenerInfo))
	require.NoError(t, s.RemoveType(message.ListenerInfo), "removing twice is not an error")
	require.NoError(t, s.RemoveTypes(message.ReceivedTelem))
	assert.Equal(t, []message.Type{message.Telem}, s.Types())

	require.NoError(t, s.SetTypes(message.ListenerTelem, message.ListenerInfo))
	assert.Equal(t, []message.Type{message.ListenerInfo, message.ListenerTelem}, s.Types())

	s.ClearTypes()
	assert.Empty(t, s.Types())
	assert.False(t, s.Wants(message.Type(99)))
}

func TestInterestSet_RejectsInvalid(t *testing.T) {
	s := newSink(t, sink.Inline, testutil.NewRecordingHandler(message.Telem))

	ops := map[string]func() error{
		"AddType":     func() error { return s.AddType(message.Type(4)) },
		"AddTypes":    func() error { return s.AddTypes(message.ListenerInfo, message.Type(-1)) },
		"RemoveType":  func() error { return s.RemoveType(message.Type(4)) },
		"RemoveTypes": func() error { return s.RemoveTypes(message.Type(12)) },
		"SetTypes":    func() error { return s.SetTypes(message.Type(5)) },
	}
	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			err := op()
			require.Error(t, err)
			assert.True(t, errors.IsValueKind(err))
			assert.Equal(t, []message.Type{message.Telem}, s.Types(), "set unchanged")
		})
	}
}

func TestPushMessage_Nil(t *testing.T) {
	for _, d := range disciplines {
		s := newSink(t, d, testutil.NewRecordingHandler(message.Telem))
		err := s.PushMessage(nil)
		require.Error(t, err)
		assert.True(t, errors.IsTypeKind(err))
	}
}

func TestPushMessage_FiltersByInterest(t *testing.T) {
	for _, d := range disciplines {
		t.Run(d.String(), func(t *testing.T) {
			h := testutil.NewRecordingHandler(message.ReceivedTelem)
			s := newSink(t, d, h)

			for i := 0; i < 4; i++ {
				require.NoError(t, s.PushMessage(testutil.SampleMessage(t, message.Telem)))
			}
			s.Flush()
			assert.Equal(t, 0, h.Count())

			require.NoError(t, s.PushMessage(testutil.SampleMessage(t, message.ReceivedTelem)))
			s.Flush()
			assert.Equal(t, 1, h.Count())

			for i := 0; i < 3; i++ {
				require.NoError(t, s.PushMessage(testutil.SampleMessage(t, message.ReceivedTelem)))
			}
			s.Flush()
			assert.Equal(t, 4, h.Count())

			stats := s.Stats()
			assert.Equal(t, uint64(4), stats.Delivered)
			assert.Equal(t, uint64(4), stats.Skipped)
			assert.Equal(t, 0, stats.Queued)
		})
	}
}

func TestInline_IsSynchronous(t *testing.T) {
	h := testutil.NewRecordingHandler(message.Telem)
	s := newSink(t, sink.Inline, h)

	m := testutil.SampleMessage(t, message.Telem)
	require.NoError(t, s.PushMessage(m))
	require.Equal(t, 1, h.Count())
	assert.Same(t, m, h.Messages()[0])
}

func TestInline_ConcurrentHandleAndFlush(t *testing.T) {
	h := testutil.NewGateHandler(message.Telem)
	s := newSink(t, sink.Inline, h)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		m := testutil.SampleMessage(t, message.Telem)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.PushMessage(m)
		}()
	}
	<-h.Entered
	<-h.Entered
	assert.Equal(t, 2, h.MaxActive())
	assert.Equal(t, "<test.Sink (inline): 0 messages so far, 2 executing now>", s.String())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.FlushContext(ctx), context.DeadlineExceeded)

	flushed := make(chan struct{})
	go func() {
		s.Flush()
		close(flushed)
	}()

	select {
	case <-flushed:
		t.Fatal("flush returned while deliveries were in flight")
	case <-time.After(20 * time.Millisecond):
	}

	h.Release()
	wg.Wait()
	select {
	case <-flushed:
	case <-time.After(time.Second):
		t.Fatal("flush did not return")
	}
	assert.Equal(t, 2, h.Handled())
	assert.Equal(t, "<test.Sink (inline): 2 messages so far, 0 executing now>", s.String())
}

func TestQueued_PushIsInstantAndOrdered(t *testing.T) {
	h := testutil.NewGateHandler(message.Telem)
	s := newSink(t, sink.Queued, h)

	sent := make([]*message.Message, 10)
	start := time.Now()
	for i := range sent {
		sent[i] = testutil.MessageWithData(t, message.Telem, i)
		require.NoError(t, s.PushMessage(sent[i]))
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	first := <-h.Entered
	assert.Same(t, sent[0], first)
	assert.Equal(t, 9, s.Stats().Queued)

	h.Release()
	s.Flush()

	assert.Equal(t, 10, h.Handled())
	assert.Equal(t, 1, h.MaxActive(), "exactly one Handle at a time")
	for i := 1; i < len(sent); i++ {
		assert.Same(t, sent[i], <-h.Entered)
	}
	assert.Equal(t, 0, s.Stats().Queued)
}

func TestQueued_InterestCheckedAtProcessingTime(t *testing.T) {
	h := testutil.NewGateHandler(message.Telem, message.ReceivedTelem)
	s := newSink(t, sink.Queued, h)

	require.NoError(t, s.PushMessage(testutil.SampleMessage(t, message.Telem)))
	<-h.Entered

	require.NoError(t, s.PushMessage(testutil.SampleMessage(t, message.ReceivedTelem)))
	require.NoError(t, s.PushMessage(testutil.SampleMessage(t, message.ReceivedTelem)))
	require.NoError(t, s.RemoveType(message.ReceivedTelem))

	h.Release()
	s.Flush()

	assert.Equal(t, 1, h.Handled())
	assert.Equal(t, uint64(2), s.Stats().Skipped)
}

func TestQueued_FlushWaitsForQueue(t *testing.T) {
	h := testutil.NewGateHandler(message.Telem)
	s := newSink(t, sink.Queued, h)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.PushMessage(testutil.SampleMessage(t, message.Telem)))
	}
	<-h.Entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.FlushContext(ctx), context.DeadlineExceeded)
	assert.Equal(t, "<test.Sink (queued): 0 messages so far, 2 queued>", s.String())

	h.Release()
	require.NoError(t, s.FlushContext(context.Background()))
	assert.Equal(t, 3, h.Handled())
}

func TestShutdown_DrainsAndRejects(t *testing.T) {
	for _, d := range disciplines {
		t.Run(d.String(), func(t *testing.T) {
			h := testutil.NewRecordingHandler(message.Telem)
			s, err := sink.New("test.Drain", d, h, nil)
			require.NoError(t, err)

			for i := 0; i < 50; i++ {
				require.NoError(t, s.PushMessage(testutil.SampleMessage(t, message.Telem)))
			}
			require.NoError(t, s.Shutdown())
			assert.Equal(t, 50, h.Count(), "pending messages drained")
			assert.Equal(t, 1, h.CloseCalls())

			err = s.PushMessage(testutil.SampleMessage(t, message.Telem))
			assert.ErrorIs(t, err, errors.ErrShuttingDown)
			assert.Equal(t, uint64(1), s.Stats().Dropped)

			require.NoError(t, s.Shutdown())
			assert.Equal(t, 1, h.CloseCalls(), "shutdown is idempotent")
		})
	}
}

func TestShutdown_WaitsForInFlight(t *testing.T) {
	h := testutil.NewGateHandler(message.Telem)
	s, err := sink.New("test.Slow", sink.Queued, h, nil)
	require.NoError(t, err)

	require.NoError(t, s.PushMessage(testutil.SampleMessage(t, message.Telem)))
	require.NoError(t, s.PushMessage(testutil.SampleMessage(t, message.Telem)))
	<-h.Entered

	done := make(chan struct{})
	go func() {
		_ = s.Shutdown()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("shutdown returned while Handle was running")
	case <-time.After(20 * time.Millisecond):
	}
	h.Release()
	<-done
	assert.Equal(t, 2, h.Handled())
}

func TestShutdown_ReturnsCloseError(t *testing.T) {
	h := sink.HandlerFuncs{
		SetupFunc:  func(*sink.Sink) error { return nil },
		HandleFunc: func(*message.Message) error { return nil },
		CloseFunc:  func() error { return fmt.Errorf("flush to disk") },
	}
	s, err := sink.New("test.Close", sink.Inline, h, nil)
	require.NoError(t, err)
	err = s.Shutdown()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flush to disk")
}

func TestHandleFailuresAreContained(t *testing.T) {
	for _, d := range disciplines {
		for _, panics := range []bool{false, true} {
			t.Run(fmt.Sprintf("%s/panic=%v", d, panics), func(t *testing.T) {
				var mu sync.Mutex
				var failures []*errors.DeliveryError
				var results []sink.Result

				h := &testutil.FailingHandler{Types: []message.Type{message.Telem}, Panic: panics}
				s := newSink(t, d, h,
					sink.WithFailureFunc(func(de *errors.DeliveryError) {
						mu.Lock()
						defer mu.Unlock()
						failures = append(failures, de)
					}),
					sink.WithResultFunc(func(r sink.Result) {
						mu.Lock()
						defer mu.Unlock()
						results = append(results, r)
					}))

				m := testutil.SampleMessage(t, message.Telem)
				require.NoError(t, s.PushMessage(m))
				require.NoError(t, s.PushMessage(testutil.SampleMessage(t, message.Telem)))
				s.Flush()

				assert.Equal(t, 2, h.Calls(), "processing continues after a failure")
				assert.Equal(t, uint64(2), s.Stats().Failed)

				mu.Lock()
				defer mu.Unlock()
				require.Len(t, failures, 2)
				assert.Equal(t, "test.Sink", failures[0].Sink)
				assert.Equal(t, m.ID().String(), failures[0].MessageID)
				assert.Equal(t, "TELEM", failures[0].Type)
				assert.Equal(t, panics, failures[0].Panic)
				if panics {
					assert.ErrorIs(t, failures[0], errors.ErrHandlerPanic)
				} else {
					assert.ErrorIs(t, failures[0], testutil.ErrInjected)
				}
				require.Len(t, results, 2)
				assert.NotNil(t, results[0].Err)
			})
		}
	}
}

func TestResultFunc_ObservesSuccess(t *testing.T) {
	var got []sink.Result
	h := testutil.NewRecordingHandler(message.ListenerInfo)
	s := newSink(t, sink.Inline, h, sink.WithResultFunc(func(r sink.Result) { got = append(got, r) }))

	m := testutil.SampleMessage(t, message.ListenerInfo)
	require.NoError(t, s.PushMessage(m))
	require.Len(t, got, 1)
	assert.Nil(t, got[0].Err)
	assert.Same(t, m, got[0].Message)
	assert.Equal(t, "test.Sink", got[0].Sink)
}

func TestInterestRaceIsSafe(t *testing.T) {
	for _, d := range disciplines {
		t.Run(d.String(), func(t *testing.T) {
			h := testutil.NewRecordingHandler(message.Telem)
			s := newSink(t, d, h)

			m := testutil.SampleMessage(t, message.Telem)
			var wg sync.WaitGroup
			wg.Add(2)
			go func() {
				defer wg.Done()
				for i := 0; i < 200; i++ {
					_ = s.PushMessage(m)
				}
			}()
			go func() {
				defer wg.Done()
				for i := 0; i < 200; i++ {
					if i%2 == 0 {
						_ = s.RemoveType(message.Telem)
					} else {
						_ = s.AddType(message.Telem)
					}
				}
			}()
			wg.Wait()
			s.Flush()

			st := s.Stats()
			assert.Equal(t, uint64(200), st.Delivered+st.Skipped)
		})
	}
}

func TestDiscipline(t *testing.T) {
	tests := []struct {
		in      string
		want    sink.Discipline
		wantErr bool
	}{
		{"inline", sink.Inline, false},
		{"Queued", sink.Queued, false},
		{"threaded", sink.Queued, false},
		{"simple", sink.Inline, false},
		{"parallel", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := sink.ParseDiscipline(tt.in)
			if tt.wantErr {
				assert.True(t, errors.IsValueKind(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Equal(t, "unknown", sink.Discipline(7).String())
	assert.False(t, sink.Discipline(0).Valid())
}
