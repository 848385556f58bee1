package cli

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/nutritrack/internal/client/client"
	"github.com/dmitrijs2005/nutritrack/internal/client/config"
	"github.com/dmitrijs2005/nutritrack/internal/client/connectivity"
	"github.com/dmitrijs2005/nutritrack/internal/client/models"
	"github.com/dmitrijs2005/nutritrack/internal/client/services"
	"github.com/dmitrijs2005/nutritrack/internal/logging"
)

type fakeBackend struct {
	client.Client

	mu      sync.Mutex
	created int
	color   string
	down    bool
}

func (f *fakeBackend) Create(ctx context.Context, kind models.Kind, body []byte) (*client.CreateResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return nil, client.ErrUnavailable
	}
	f.created++
	return &client.CreateResponse{ID: fmt.Sprint(f.created), Status: 201}, nil
}

func (f *fakeBackend) Ping(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return client.ErrUnavailable
	}
	return nil
}

func (f *fakeBackend) DeployColor(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return "", client.ErrUnavailable
	}
	return f.color, nil
}

func newTestApp(t *testing.T, backend *fakeBackend, online bool, input string) (*App, *bytes.Buffer) {
	t.Helper()
	ctx := context.Background()

	db, err := client.InitDatabase(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := logging.Discard()
	repos := client.NewRepositories(db)
	monitor := connectivity.NewMonitor(online, log)
	var out bytes.Buffer

	a := &App{
		config:   &config.Config{},
		queue:    services.NewWriteQueue(repos.Pending, repos.UserData, backend, monitor, log, nil),
		foods:    services.NewFoodCacheService(repos.FoodCache),
		backend:  backend,
		userData: repos.UserData,
		monitor:  monitor,
		db:       db,
		log:      log,
		reader:   bufio.NewReader(strings.NewReader(input)),
		out:      &out,
	}
	monitor.Subscribe(a.replayAll)
	return a, &out
}

func TestAddMeal_OfflineThenReconnect(t *testing.T) {
	backend := &fakeBackend{}
	a, out := newTestApp(t, backend, false, "Oatmeal\nbreakfast\n350\n12\n60\n6\nwith berries\n")
	ctx := context.Background()

	require.NoError(t, a.AddMeal(ctx))
	assert.Contains(t, out.String(), "Saved offline as local_")
	assert.Zero(t, backend.created)
	assert.Equal(t, "(offline, 1 pending)", a.getStatus())

	a.monitor.SetOnline(ctx, true)
	assert.Equal(t, 1, backend.created, "reconnect replays the queue")
	assert.Equal(t, "(online)", a.getStatus())

	out.Reset()
	require.NoError(t, a.List(ctx, []string{"meals"}))
	assert.Contains(t, out.String(), "synced #1")
	assert.Contains(t, out.String(), "Oatmeal")
}

func TestAddWorkout_Online(t *testing.T) {
	backend := &fakeBackend{}
	a, out := newTestApp(t, backend, true, "Run\ncardio\n30\n300\n\n")

	require.NoError(t, a.AddWorkout(context.Background()))
	assert.Contains(t, out.String(), "Saved and synced (server id 1)")
}

func TestAddWorkout_BadNumber(t *testing.T) {
	a, _ := newTestApp(t, &fakeBackend{}, true, "Run\ncardio\nhalf an hour\n")
	require.ErrorIs(t, a.AddWorkout(context.Background()), ErrNotANumber)
}

func TestList_Usage(t *testing.T) {
	a, _ := newTestApp(t, &fakeBackend{}, true, "")
	ctx := context.Background()

	require.ErrorIs(t, a.List(ctx, nil), ErrUsage)
	require.ErrorIs(t, a.List(ctx, []string{"snacks"}), models.ErrUnknownKind)
}

func TestSyncStatusPurge(t *testing.T) {
	backend := &fakeBackend{down: true}
	a, out := newTestApp(t, backend, true, "Swim\n\n45\n400\n\n")
	ctx := context.Background()

	require.NoError(t, a.AddWorkout(ctx))
	assert.Contains(t, out.String(), "delivery failed")

	backend.down = false
	out.Reset()
	require.NoError(t, a.Sync(ctx))
	assert.Contains(t, out.String(), "workouts: 1 delivered, 0 failed, 0 skipped")

	out.Reset()
	require.NoError(t, a.Status(ctx))
	assert.Contains(t, out.String(), "unsynced workouts: 0")

	out.Reset()
	require.NoError(t, a.Purge(ctx, []string{"workouts"}))
	assert.Contains(t, out.String(), "Removed 1 synced workouts")
}

func TestSync_Offline(t *testing.T) {
	a, out := newTestApp(t, &fakeBackend{}, false, "")
	require.NoError(t, a.Sync(context.Background()))
	assert.Contains(t, out.String(), "Offline")
}

func TestColor_RemembersLastKnown(t *testing.T) {
	backend := &fakeBackend{color: "blue"}
	a, out := newTestApp(t, backend, true, "")
	ctx := context.Background()

	require.NoError(t, a.Color(ctx))
	assert.Contains(t, out.String(), "deploy color: blue")

	backend.down = true
	out.Reset()
	require.NoError(t, a.Color(ctx))
	assert.Contains(t, out.String(), "blue (last known")
}

func TestFoods(t *testing.T) {
	a, out := newTestApp(t, &fakeBackend{}, true, "")
	ctx := context.Background()

	require.NoError(t, a.Foods(ctx))
	assert.Contains(t, out.String(), "empty")

	_, err := a.foods.UpdateFoodCache(ctx, []models.Food{{ID: "1", Name: "Apple", Calories: 52}})
	require.NoError(t, err)

	out.Reset()
	require.NoError(t, a.Foods(ctx))
	assert.Contains(t, out.String(), "Apple")
}
