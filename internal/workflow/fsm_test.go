package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const (
	testTimeout = 2 * time.Second
	testTick    = 5 * time.Millisecond
)

func TestMachineHappyPath(t *testing.T) {
	t.Parallel()

	var m Machine
	d := &Draft{}
	steps := []struct {
		ev   Event
		want State
	}{
		{EvOpen, Reserving},
		{EvReserveDone, Reserved},
		{EvLoaded, DetailsLoaded},
		{EvFetchExternal, ExternalInfoPending},
		{EvExternalFetched, ReadyToSubmit},
		{EvSubmit, Submitting},
		{EvSubmitted, Closed},
	}
	for _, s := range steps {
		_, err := m.Fire(s.ev, d)
		require.NoError(t, err, "event %s", s.ev)
		require.Equal(t, s.want, m.State())
	}
}

func TestMachineRejectsOutOfOrderEvents(t *testing.T) {
	t.Parallel()

	var m Machine
	_, err := m.Fire(EvSubmit, &Draft{})
	var ite *InvalidTransitionError
	require.ErrorAs(t, err, &ite)
	require.Equal(t, Closed, ite.State)
	require.Equal(t, "workflow: submit not allowed in closed", err.Error())

	m.state = Submitting
	require.False(t, m.Can(EvCancel, &Draft{}))
	m.state = DetailsLoaded
	require.False(t, m.Can(EvSubmit, &Draft{ExternalInfoFetched: true}))
}

func TestMachineExternalFailureGuard(t *testing.T) {
	t.Parallel()

	m := Machine{state: ExternalInfoPending}
	_, err := m.Fire(EvExternalFailed, &Draft{})
	require.NoError(t, err)
	require.Equal(t, DetailsLoaded, m.State())

	m.state = ExternalInfoPending
	_, err = m.Fire(EvExternalFailed, &Draft{ExternalInfoFetched: true})
	require.NoError(t, err)
	require.Equal(t, ReadyToSubmit, m.State())
}

func TestEveryOpenStateCanCancelExceptSubmitting(t *testing.T) {
	t.Parallel()

	for _, s := range []State{Reserving, Reserved, DetailsLoaded, ExternalInfoPending, ReadyToSubmit} {
		m := Machine{state: s}
		require.True(t, m.Can(EvCancel, &Draft{}), s.String())
	}
}

func TestParseMoney(t *testing.T) {
	t.Parallel()

	require.Equal(t, "12.5", ParseMoney(" 12,50 ").Decimal.String())
	require.False(t, ParseMoney("").Valid)
	require.False(t, ParseMoney("abc").Valid)
}
