package broker

import (
	"bytes"
	"errors"
	"reflect"
	"testing"
)

type fakeAliases map[string]map[string][]string

func (f fakeAliases) AliasesFor(appID string) (map[string][]string, error) {
	return f[appID], nil
}

func TestRegistrySameInstanceByIDAndKey(t *testing.T) {
	registry := NewRegistry(&fakeApps{apps: []App{testApp}}, nil)

	byKey, err := registry.ByKey("key1")
	if err != nil {
		t.Fatalf("ByKey: %v", err)
	}
	byID, err := registry.ByID("app1")
	if err != nil {
		t.Fatalf("ByID: %v", err)
	}
	if byKey != byID {
		t.Fatal("id and key resolved to different AppState instances")
	}
}

func TestRegistryNotFound(t *testing.T) {
	registry := NewRegistry(&fakeApps{}, nil)

	_, err := registry.ByID("missing")
	if !errors.Is(err, ErrAppNotFound) {
		t.Fatalf("ByID: got %v, want ErrAppNotFound", err)
	}
	if !IsNotFound(err) {
		t.Fatal("IsNotFound should match ErrAppNotFound")
	}
	_, err = registry.ByKey("missing")
	if !errors.Is(err, ErrAppNotFound) {
		t.Fatalf("ByKey: got %v, want ErrAppNotFound", err)
	}
}

func TestRegistryInvalidate(t *testing.T) {
	registry := NewRegistry(&fakeApps{apps: []App{testApp}}, nil)

	before, _ := registry.ByID("app1")
	registry.Invalidate("app1")
	after, err := registry.ByID("app1")
	if err != nil {
		t.Fatalf("reload after invalidate: %v", err)
	}
	if before == after {
		t.Fatal("invalidate did not drop the cached state")
	}
	// Key index must be invalidated together with the id index.
	byKey, _ := registry.ByKey("key1")
	if byKey != after {
		t.Fatal("key index out of sync after invalidate")
	}
}

func TestRegistryAliasPreload(t *testing.T) {
	aliases := fakeAliases{
		"app1": {"personal-42": {"news", "sports"}},
	}
	registry := NewRegistry(&fakeApps{apps: []App{testApp}}, aliases)

	app, err := registry.ByKey("key1")
	if err != nil {
		t.Fatalf("ByKey: %v", err)
	}
	got := app.Aliases().Resolve("personal-42")
	if !reflect.DeepEqual(got, []string{"news", "sports"}) {
		t.Fatalf("preloaded aliases = %v", got)
	}
}

func TestRegistrySecretFor(t *testing.T) {
	registry := NewRegistry(&fakeApps{apps: []App{testApp}}, nil)

	secret, err := registry.SecretFor("key1")
	if err != nil {
		t.Fatalf("SecretFor: %v", err)
	}
	if !bytes.Equal(secret, testApp.Secret) {
		t.Fatalf("SecretFor = %q", secret)
	}
	if _, err := registry.SecretFor("missing"); !errors.Is(err, ErrAppNotFound) {
		t.Fatalf("got %v, want ErrAppNotFound", err)
	}
}

func TestRegistryStats(t *testing.T) {
	registry := NewRegistry(&fakeApps{apps: []App{testApp}}, nil)
	manager := NewSubscriptionManager(registry, NewVerifier(registry))

	connect(t, manager, "s1")
	connect(t, manager, "s2")
	subscribe(t, manager, "s1", "room", nil)

	stats := registry.Stats()
	if stats.Apps != 1 || stats.Connections != 2 || stats.Channels != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if len(stats.Details) != 1 || stats.Details[0].AppID != "app1" {
		t.Fatalf("details = %+v", stats.Details)
	}
}
