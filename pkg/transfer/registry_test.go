package transfer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryProgressUnknownKey(t *testing.T) {
	r := NewRegistry(RegistryParams{})

	rec := r.Progress("/models/never-seen.bin")

	assert.Equal(t, "/models/never-seen.bin", rec.Key)
	assert.Equal(t, StatusIdle, rec.Status)
	assert.Equal(t, 0, rec.Progress)
}

func TestRegistryBeginClaimsKeyOnce(t *testing.T) {
	r := NewRegistry(RegistryParams{})

	pending1, ctx1, rec1, started1 := r.begin("/models/a.bin", "/models/a.bin")
	require.True(t, started1)
	require.NotNil(t, ctx1)
	assert.Equal(t, StatusDownloading, rec1.Status)
	assert.False(t, rec1.StartedAt.IsZero())

	pending2, ctx2, rec2, started2 := r.begin("/models/a.bin", "/models/a.bin")
	require.False(t, started2)
	assert.Nil(t, ctx2)
	assert.Equal(t, StatusDownloading, rec2.Status)
	assert.Same(t, pending1, pending2)

	select {
	case <-pending2.done:
		t.Fatal("handle closed before the transfer settled")
	default:
	}

	final := r.settle("/models/a.bin", StatusDone, "")
	assert.Equal(t, StatusDone, final.Status)
	assert.Equal(t, 100, final.Progress)
	assert.False(t, final.FinishedAt.IsZero())
	<-pending2.done

	_, _, _, started3 := r.begin("/models/a.bin", "/models/a.bin")
	assert.True(t, started3)
}

func TestRegistryJoinerReadsSettledRecordAfterReclaim(t *testing.T) {
	r := NewRegistry(RegistryParams{})

	_, _, _, started := r.begin("/models/a.bin", "/models/a.bin")
	require.True(t, started)

	join, _, _, joinStarted := r.begin("/models/a.bin", "/models/a.bin")
	require.False(t, joinStarted)

	settled := r.settle("/models/a.bin", StatusDone, "")

	// A resubmission can re-claim the key before a woken joiner gets to
	// run. The joiner's handle must still carry the settled record, not
	// the re-claimed key's fresh downloading one.
	_, _, _, reclaimed := r.begin("/models/a.bin", "/models/a.bin")
	require.True(t, reclaimed)
	require.Equal(t, StatusDownloading, r.Progress("/models/a.bin").Status)

	<-join.done
	assert.Equal(t, settled, join.rec)
	assert.Equal(t, StatusDone, join.rec.Status)
	assert.Equal(t, 100, join.rec.Progress)
}

func TestRegistryCancel(t *testing.T) {
	r := NewRegistry(RegistryParams{})

	assert.False(t, r.Cancel("/models/a.bin"))

	_, ctx, _, started := r.begin("/models/a.bin", "/models/a.bin")
	require.True(t, started)

	require.True(t, r.Cancel("/models/a.bin"))
	<-ctx.Done()
	assert.ErrorIs(t, ctx.Err(), context.Canceled)

	r.settle("/models/a.bin", StatusStopped, "")
	assert.False(t, r.Cancel("/models/a.bin"))
}

func TestRegistrySetProgress(t *testing.T) {
	r := NewRegistry(RegistryParams{})
	r.begin("/models/a.bin", "/models/a.bin")

	r.setProgress("/models/a.bin", 42)
	assert.Equal(t, 42, r.Progress("/models/a.bin").Progress)

	r.settle("/models/a.bin", StatusError, "connection reset")

	// Updates after settling are ignored.
	r.setProgress("/models/a.bin", 99)
	rec := r.Progress("/models/a.bin")
	assert.Equal(t, 42, rec.Progress)
	assert.Equal(t, "connection reset", rec.ErrorMessage)
}

func TestRegistryListActiveOrRecent(t *testing.T) {
	r := NewRegistry(RegistryParams{})

	r.begin("/models/a.bin", "/models/a.bin")

	r.begin("/models/b.bin", "/models/b.bin")
	r.settle("/models/b.bin", StatusDone, "")

	r.begin("/models/c.bin", "/models/c.bin")
	r.settle("/models/c.bin", StatusError, "boom")

	r.begin("/models/d.bin", "/models/d.bin")
	r.settle("/models/d.bin", StatusStopped, "")

	recs := r.ListActiveOrRecent()

	keys := make([]string, 0, len(recs))
	for _, rec := range recs {
		keys = append(keys, rec.Key)
	}
	assert.Equal(t, []string{"/models/a.bin", "/models/c.bin", "/models/d.bin"}, keys)
}

func TestRegistryCancelAll(t *testing.T) {
	r := NewRegistry(RegistryParams{})
	_, ctx1, _, _ := r.begin("/models/a.bin", "/models/a.bin")
	_, ctx2, _, _ := r.begin("/models/b.bin", "/models/b.bin")

	r.cancelAll()

	<-ctx1.Done()
	<-ctx2.Done()
}
