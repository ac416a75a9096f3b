package store

import (
	"testing"
	"time"

	"github.com/robertmeta/ferment-cli/model"
	"github.com/robertmeta/ferment-cli/stress"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_Statuses(t *testing.T) {
	s := newTestStore(t)

	// Fed on the counter, moved to the fridge after 8h.
	levain := newStarter(t, s, "Levain", model.LocationCounter)
	_, err := s.RecordMove(levain.ID, locationPtr(model.LocationFridge), t0.Add(8*time.Hour), "")
	require.NoError(t, err)

	// Fed in the fridge and left there.
	rye := newStarter(t, s, "Rye", model.LocationFridge)

	scoby := &model.Starter{Name: "Scoby", IntervalHours: 168, LastFedAt: "not-a-date", Location: model.LocationCounter}
	require.NoError(t, s.SaveStarter(scoby))

	now := t0.Add(32 * time.Hour)
	all, err := s.Statuses(stress.DefaultModel, ListOptions{}, now)
	require.NoError(t, err)
	require.Len(t, all, 3)

	assert.Equal(t, "Levain", all[0].Starter.Name)
	assert.InDelta(t, 16.0, all[0].Status.Stress, 1e-9)
	assert.Equal(t, stress.LabelNeedsFeed, all[0].Status.Label)

	// 32h / 3 = 10.67 of 16
	assert.InDelta(t, 32.0/3.0, all[1].Status.Stress, 1e-9)
	assert.Equal(t, stress.LabelHappy, all[1].Status.Label)

	assert.Equal(t, stress.Status{Label: stress.LabelUnknown}, all[2].Status)

	needy, err := s.Statuses(stress.DefaultModel, ListOptions{Label: stress.LabelNeedsFeed}, now)
	require.NoError(t, err)
	require.Len(t, needy, 1)
	assert.Equal(t, levain.ID, needy[0].Starter.ID)

	inFridge, err := s.Statuses(stress.DefaultModel, ListOptions{Location: model.LocationFridge}, now)
	require.NoError(t, err)
	assert.Len(t, inFridge, 2)

	one, err := s.Status(stress.DefaultModel, rye.ID, now)
	require.NoError(t, err)
	assert.Equal(t, all[1].Status, one.Status)

	_, err = s.Status(stress.DefaultModel, 999, now)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_StatusResetsAfterFeed(t *testing.T) {
	s := newTestStore(t)
	levain := newStarter(t, s, "Levain", model.LocationCounter)
	_, err := s.RecordMove(levain.ID, locationPtr(model.LocationFridge), t0.Add(8*time.Hour), "")
	require.NoError(t, err)

	fedAt := t0.Add(32 * time.Hour)
	_, err = s.RecordFeed(levain.ID, fedAt)
	require.NoError(t, err)

	// The old move predates the feed and no longer counts; the starter is
	// now fed in the fridge.
	got, err := s.Status(stress.DefaultModel, levain.ID, fedAt.Add(6*time.Hour))
	require.NoError(t, err)
	assert.InDelta(t, 2.0, got.Status.Stress, 1e-9)
	assert.Equal(t, stress.LabelHappy, got.Status.Label)
}
