// internal/store/store_test.go
package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markb/pushlite/internal/broker"
	"github.com/markb/pushlite/internal/db"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	database, err := db.New(t.TempDir() + "/test.db")
	require.NoError(t, err)
	require.NoError(t, database.RunMigrations())
	t.Cleanup(func() { database.Close() })
	return New(database)
}

func seedApp(t *testing.T, s *Store) broker.App {
	t.Helper()
	app := broker.App{ID: "app1", Key: "key1", Secret: []byte("s3cret"), Name: "test"}
	require.NoError(t, s.CreateApp(app))
	return app
}

func TestAppLookup(t *testing.T) {
	s := setupStore(t)
	seeded := seedApp(t, s)

	byID, err := s.AppByID("app1")
	require.NoError(t, err)
	assert.Equal(t, seeded, byID)

	byKey, err := s.AppByKey("key1")
	require.NoError(t, err)
	assert.Equal(t, seeded, byKey)
}

func TestAppLookupNotFound(t *testing.T) {
	s := setupStore(t)

	_, err := s.AppByID("missing")
	assert.ErrorIs(t, err, broker.ErrAppNotFound)

	_, err = s.AppByKey("missing")
	assert.ErrorIs(t, err, broker.ErrAppNotFound)
}

func TestSaveEventAndAssociations(t *testing.T) {
	s := setupStore(t)
	seedApp(t, s)

	ev := broker.NewEvent("app1", "room", "msg", "s1", map[string]any{"x": float64(1)})
	require.NoError(t, s.SaveEvent(ev))

	require.NoError(t, s.SaveAssociation(ev.ID, "u1"))
	require.NoError(t, s.SaveAssociation(ev.ID, "u2"))
	// Duplicate association is ignored, not an error
	require.NoError(t, s.SaveAssociation(ev.ID, "u1"))

	events, err := s.EventsFor("app1", "u1", 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, ev.ID, events[0].ID)
	assert.Equal(t, "room", events[0].Channel)
	assert.Equal(t, "msg", events[0].Name)
	assert.Equal(t, map[string]any{"x": float64(1)}, events[0].Payload)
}

func TestFindSubscriptions(t *testing.T) {
	s := setupStore(t)
	seedApp(t, s)

	require.NoError(t, s.AddSubscription("app1", "u1", "news"))
	require.NoError(t, s.AddSubscription("app1", "u2", "news"))
	require.NoError(t, s.AddSubscription("app1", "u1", "sports"))

	users, err := s.FindSubscriptions("app1", "news")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"u1", "u2"}, users)

	require.NoError(t, s.RemoveSubscription("app1", "u2", "news"))
	users, err = s.FindSubscriptions("app1", "news")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, users)
}

func TestAliasesFor(t *testing.T) {
	s := setupStore(t)
	seedApp(t, s)

	require.NoError(t, s.AddSubscription("app1", "42", "news"))
	require.NoError(t, s.AddSubscription("app1", "42", "sports"))
	require.NoError(t, s.AddSubscription("app1", "7", "news"))

	aliases, err := s.AliasesFor("app1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"news", "sports"}, aliases["personal-42"])
	assert.Equal(t, []string{"news"}, aliases["personal-7"])
}
