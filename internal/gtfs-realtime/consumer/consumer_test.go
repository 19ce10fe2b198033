package consumer

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"

	"github.com/traintracker-data/internal/common/logger"
)

func sampleFeed() *gtfs.FeedMessage {
	return &gtfs.FeedMessage{
		Header: &gtfs.FeedHeader{
			GtfsRealtimeVersion: proto.String("2.0"),
			Timestamp:           proto.Uint64(1700000000),
		},
		Entity: []*gtfs.FeedEntity{{
			Id: proto.String("1"),
			Vehicle: &gtfs.VehiclePosition{
				Vehicle: &gtfs.VehicleDescriptor{Id: proto.String("101")},
			},
		}},
	}
}

func TestHTTPFetcher(t *testing.T) {
	body, err := proto.Marshal(sampleFeed())
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("api_key"))
		assert.Equal(t, "no-cache", r.Header.Get("Cache-Control"))
		assert.Equal(t, UserAgent, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/x-protobuf")
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(FetcherConfig{URL: srv.URL, APIKey: "secret"})
	feed, err := f.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, feed.GetEntity(), 1)
	assert.Equal(t, "101", feed.GetEntity()[0].GetVehicle().GetVehicle().GetId())
}

func TestHTTPFetcherCustomHeader(t *testing.T) {
	body, err := proto.Marshal(sampleFeed())
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Ocp-Apim-Subscription-Key") != "k" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	_, err = NewHTTPFetcher(FetcherConfig{URL: srv.URL, APIKeyHeader: "Ocp-Apim-Subscription-Key", APIKey: "k"}).Fetch(context.Background())
	assert.NoError(t, err)

	_, err = NewHTTPFetcher(FetcherConfig{URL: srv.URL, APIKey: "k"}).Fetch(context.Background())
	assert.ErrorContains(t, err, "401")
}

func TestHTTPFetcherDecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not a protobuf"))
	}))
	defer srv.Close()

	_, err := NewHTTPFetcher(FetcherConfig{URL: srv.URL}).Fetch(context.Background())
	assert.ErrorContains(t, err, "unmarshal")
}

type fakeFetcher struct {
	calls   atomic.Int32
	block   chan struct{}
	failing atomic.Bool
}

func (f *fakeFetcher) Fetch(ctx context.Context) (*gtfs.FeedMessage, error) {
	f.calls.Add(1)
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.failing.Load() {
		return nil, errors.New("503 Service Unavailable")
	}
	return sampleFeed(), nil
}

type countingHandler struct {
	calls atomic.Int32
}

func (h *countingHandler) HandleFeed(context.Context, *gtfs.FeedMessage) error {
	h.calls.Add(1)
	return nil
}

type recordingObserver struct {
	mu      sync.Mutex
	errs    []error
	skipped int
}

func (o *recordingObserver) CycleCompleted(_ string, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errs = append(o.errs, err)
}

func (o *recordingObserver) TickSkipped(string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.skipped++
}

func TestTickSkipsWhileCycleRunning(t *testing.T) {
	f := &fakeFetcher{block: make(chan struct{})}
	h := &countingHandler{}
	obs := &recordingObserver{}
	p := NewPoller("positions", f, h, logger.Nop(), WithObserver(obs))
	ctx := context.Background()

	require.True(t, p.Tick(ctx))
	require.Eventually(t, func() bool { return f.calls.Load() == 1 }, time.Second, time.Millisecond)

	assert.False(t, p.Tick(ctx))
	assert.False(t, p.Tick(ctx))
	assert.Equal(t, int32(1), f.calls.Load())
	assert.Equal(t, int32(0), h.calls.Load())

	close(f.block)
	p.Wait()
	assert.Equal(t, int32(1), h.calls.Load())

	require.True(t, p.Tick(ctx))
	p.Wait()
	assert.Equal(t, int32(2), f.calls.Load())
	assert.Equal(t, int32(2), h.calls.Load())

	obs.mu.Lock()
	defer obs.mu.Unlock()
	assert.Equal(t, 2, obs.skipped)
	assert.Equal(t, []error{nil, nil}, obs.errs)
}

func TestFailedCycleDoesNotStopNextTick(t *testing.T) {
	f := &fakeFetcher{}
	f.failing.Store(true)
	h := &countingHandler{}
	obs := &recordingObserver{}
	p := NewPoller("adherence", f, h, logger.Nop(), WithObserver(obs))
	ctx := context.Background()

	require.True(t, p.Tick(ctx))
	p.Wait()
	assert.Equal(t, int32(0), h.calls.Load())

	f.failing.Store(false)
	require.True(t, p.Tick(ctx))
	p.Wait()
	assert.Equal(t, int32(1), h.calls.Load())

	obs.mu.Lock()
	defer obs.mu.Unlock()
	require.Len(t, obs.errs, 2)
	assert.ErrorContains(t, obs.errs[0], "fetching adherence feed")
	assert.NoError(t, obs.errs[1])
}

func TestHandlerErrorIsReported(t *testing.T) {
	boom := errors.New("sink down")
	obs := &recordingObserver{}
	p := NewPoller("positions", &fakeFetcher{}, HandlerFunc(func(context.Context, *gtfs.FeedMessage) error {
		return boom
	}), logger.Nop(), WithObserver(obs))

	require.True(t, p.Tick(context.Background()))
	p.Wait()

	obs.mu.Lock()
	defer obs.mu.Unlock()
	require.Len(t, obs.errs, 1)
	assert.ErrorIs(t, obs.errs[0], boom)
}

func TestPanickingCycleIsReportedAndPollingContinues(t *testing.T) {
	f := &fakeFetcher{}
	obs := &recordingObserver{}
	var calls atomic.Int32
	handler := HandlerFunc(func(context.Context, *gtfs.FeedMessage) error {
		if calls.Add(1) == 1 {
			var seen map[string]bool
			seen["101"] = true
		}
		return nil
	})
	p := NewPoller("positions", f, handler, logger.Nop(), WithObserver(obs))

	require.NoError(t, p.Start(context.Background(), 5*time.Millisecond, 0))
	require.Eventually(t, func() bool { return calls.Load() >= 2 }, 2*time.Second, time.Millisecond)

	assert.NotPanics(t, p.Stop)
	assert.False(t, p.IsRunning())

	obs.mu.Lock()
	defer obs.mu.Unlock()
	require.GreaterOrEqual(t, len(obs.errs), 2)
	assert.ErrorContains(t, obs.errs[0], "positions feed cycle panicked")
	assert.NoError(t, obs.errs[1])
}

func TestStartStop(t *testing.T) {
	f := &fakeFetcher{}
	h := &countingHandler{}
	p := NewPoller("positions", f, h, logger.Nop())

	require.NoError(t, p.Start(context.Background(), 5*time.Millisecond, 0))
	assert.True(t, p.IsRunning())
	assert.Error(t, p.Start(context.Background(), 5*time.Millisecond, 0))

	require.Eventually(t, func() bool { return h.calls.Load() >= 3 }, 2*time.Second, time.Millisecond)

	p.Stop()
	assert.False(t, p.IsRunning())
	calls := f.calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, calls, f.calls.Load())

	// stopping twice is harmless
	p.Stop()
}

func TestStartRejectsNonPositiveInterval(t *testing.T) {
	p := NewPoller("positions", &fakeFetcher{}, &countingHandler{}, logger.Nop())
	assert.Error(t, p.Start(context.Background(), 0, 0))
	assert.False(t, p.IsRunning())
}

func TestInitialDelay(t *testing.T) {
	f := &fakeFetcher{}
	p := NewPoller("adherence", f, &countingHandler{}, logger.Nop())

	require.NoError(t, p.Start(context.Background(), time.Hour, 50*time.Millisecond))
	defer p.Stop()

	assert.Equal(t, int32(0), f.calls.Load())
	require.Eventually(t, func() bool { return f.calls.Load() == 1 }, 2*time.Second, time.Millisecond)
}

func TestStopCancelsInFlightFetch(t *testing.T) {
	f := &fakeFetcher{block: make(chan struct{})}
	h := &countingHandler{}
	p := NewPoller("positions", f, h, logger.Nop())

	require.NoError(t, p.Start(context.Background(), time.Hour, 0))
	require.Eventually(t, func() bool { return f.calls.Load() == 1 }, 2*time.Second, time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		p.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
	assert.Equal(t, int32(0), h.calls.Load())
}
