package journal

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jask/despacho/internal/database"
	"github.com/jask/despacho/internal/database/repository"
	"github.com/jask/despacho/internal/workflow"
)

type collector struct {
	mu      sync.Mutex
	batches [][]repository.Entry
	err     error
}

func (c *collector) Process(_ context.Context, batch []repository.Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches = append(c.batches, append([]repository.Entry(nil), batch...))
	return c.err
}

func (c *collector) entries() []repository.Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []repository.Entry
	for _, b := range c.batches {
		out = append(out, b...)
	}
	return out
}

func (c *collector) batchCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.batches)
}

func TestRecorderFlushesFullBatch(t *testing.T) {
	col := &collector{}
	r := NewRecorder(Config{BatchSize: 3, FlushInterval: time.Hour}, nil, col)
	r.Start(1)
	defer r.Close()

	for i := 0; i < 3; i++ {
		require.True(t, r.Record(repository.Entry{Kind: KindReserved, OrderNo: "1001"}))
	}
	require.Eventually(t, func() bool { return col.batchCount() == 1 }, time.Second, 5*time.Millisecond)
	got := col.entries()
	require.Len(t, got, 3)
	for _, e := range got {
		require.NotEmpty(t, e.ID)
		require.False(t, e.RecordedAt.IsZero())
	}
}

func TestRecorderFlushesOnInterval(t *testing.T) {
	col := &collector{}
	r := NewRecorder(Config{BatchSize: 100, FlushInterval: 10 * time.Millisecond}, nil, col)
	r.Start(1)
	defer r.Close()

	r.Record(repository.Entry{Kind: KindFinalized, OrderNo: "1002"})
	require.Eventually(t, func() bool { return len(col.entries()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestRecorderCloseDrainsQueue(t *testing.T) {
	col := &collector{}
	r := NewRecorder(Config{BatchSize: 100, FlushInterval: time.Hour}, nil, col)
	r.Start(2)
	for i := 0; i < 5; i++ {
		r.Record(repository.Entry{Kind: KindCancelled})
	}
	r.Close()
	require.Len(t, col.entries(), 5)
	require.False(t, r.Record(repository.Entry{Kind: KindCancelled}))
	r.Close()
}

func TestRecorderDropsWhenFull(t *testing.T) {
	r := NewRecorder(Config{BatchSize: 1, Buffer: 1}, nil)
	require.True(t, r.Record(repository.Entry{Kind: KindLogin}))
	require.False(t, r.Record(repository.Entry{Kind: KindLogin}))
	require.EqualValues(t, 1, r.Dropped())
	r.Close()
}

func TestRecorderStampsUser(t *testing.T) {
	col := &collector{}
	r := NewRecorder(Config{BatchSize: 10, FlushInterval: time.Hour}, nil, col)
	r.Start(1)
	r.SetUser("ops@example.com")
	r.Record(repository.Entry{Kind: KindLogin})
	r.SetUser("")
	r.Record(repository.Entry{Kind: KindSessionEnded})
	r.Close()

	got := col.entries()
	require.Len(t, got, 2)
	require.Equal(t, "ops@example.com", got[0].UserEmail)
	require.Empty(t, got[1].UserEmail)
}

func TestRecorderKeepsWorkingAfterProcessorError(t *testing.T) {
	failing := &collector{err: errors.New("disk full")}
	ok := &collector{}
	r := NewRecorder(Config{BatchSize: 1, FlushInterval: time.Hour}, nil, failing, ok)
	r.Start(1)
	r.Record(repository.Entry{Kind: KindWiped})
	r.Record(repository.Entry{Kind: KindWiped})
	r.Close()
	require.Len(t, ok.entries(), 2)
}

func TestTransitionKind(t *testing.T) {
	cases := []struct {
		name string
		c    workflow.Change
		want string
	}{
		{"reserved", workflow.Change{Transition: workflow.Transition{Event: workflow.EvReserveDone}, Reserved: true}, KindReserved},
		{"refused", workflow.Change{Transition: workflow.Transition{Event: workflow.EvReserveDone}}, KindReservationFailed},
		{"external", workflow.Change{Transition: workflow.Transition{Event: workflow.EvExternalFetched}}, KindExternalInfo},
		{"finalized", workflow.Change{Transition: workflow.Transition{Event: workflow.EvSubmitted}}, KindFinalized},
		{"submit failed", workflow.Change{Transition: workflow.Transition{Event: workflow.EvSubmitFailed}}, KindSubmitFailed},
		{"cancel", workflow.Change{Transition: workflow.Transition{Event: workflow.EvCancel}}, KindCancelled},
		{"loaded is quiet", workflow.Change{Transition: workflow.Transition{Event: workflow.EvLoaded}}, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, transitionKind(tc.c))
		})
	}
}

func TestRecorderWritesToDatabase(t *testing.T) {
	db, err := database.Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.RunMigrations(db))

	repo := repository.NewJournalRepo(db)
	r := NewRecorder(Config{BatchSize: 2, FlushInterval: time.Hour}, nil, &DBProcessor{Repo: repo})
	r.Start(1)

	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	r.Record(repository.Entry{Kind: KindReserved, OrderNo: "1001", RecordedAt: base})
	r.Record(repository.Entry{Kind: KindFinalized, OrderNo: "1001", RecordedAt: base.Add(time.Minute)})
	r.Record(repository.Entry{Kind: KindReserved, OrderNo: "1002", RecordedAt: base.Add(2 * time.Minute)})
	r.Close()

	ctx := context.Background()
	recent, err := repo.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	require.Equal(t, "1002", recent[0].OrderNo)

	hist, err := repo.ByOrder(ctx, "1001")
	require.NoError(t, err)
	require.Len(t, hist, 2)
	require.Equal(t, KindReserved, hist[0].Kind)
	require.Equal(t, KindFinalized, hist[1].Kind)

	n, err := repo.Clear(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 3, n)
}
