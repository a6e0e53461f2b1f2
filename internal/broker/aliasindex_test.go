package broker

import (
	"reflect"
	"testing"
)

func TestAliasIndexResolve(t *testing.T) {
	ai := NewAliasIndex()
	ai.Add("personal-42", "news")
	ai.Add("personal-42", "sports")
	ai.Add("personal-42", "news") // duplicate, ignored

	got := ai.Resolve("personal-42")
	if !reflect.DeepEqual(got, []string{"news", "sports"}) {
		t.Fatalf("Resolve = %v", got)
	}
	if ai.Resolve("personal-99") != nil {
		t.Fatal("unknown alias should resolve to nil")
	}
}

func TestAliasIndexOwners(t *testing.T) {
	ai := NewAliasIndex()
	ai.Add("personal-42", "news")
	ai.Add("personal-7", "news")

	got := ai.Owners("news")
	if !reflect.DeepEqual(got, []string{"personal-42", "personal-7"}) {
		t.Fatalf("Owners = %v", got)
	}
}

func TestAliasIndexRemove(t *testing.T) {
	ai := NewAliasIndex()
	ai.Add("personal-42", "news")
	ai.Add("personal-42", "sports")

	ai.Remove("personal-42", "news")
	if got := ai.Resolve("personal-42"); !reflect.DeepEqual(got, []string{"sports"}) {
		t.Fatalf("Resolve after remove = %v", got)
	}
	if ai.Owners("news") != nil {
		t.Fatal("inverse entry not cleaned up")
	}

	ai.Remove("personal-42", "sports")
	if ai.Resolve("personal-42") != nil {
		t.Fatal("empty alias entry not dropped")
	}
	ai.Remove("personal-42", "sports") // unknown pair, no-op
}
