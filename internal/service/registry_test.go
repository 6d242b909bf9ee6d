package service

import (
	"testing"

	"github.com/danmuck/isoctl/internal/testutil/testlog"
)

func TestRegistryMostRecentDuplicateWins(t *testing.T) {
	testlog.Start(t)
	reg := NewEmbedderRegistry()
	reg.Register("probe", func(_ string, _ map[string]string, _ any) (any, error) {
		return "first", nil
	}, nil)
	reg.Register("probe", func(_ string, _ map[string]string, _ any) (any, error) {
		return "second", nil
	}, nil)

	entry, ok := reg.Find("probe")
	if !ok {
		t.Fatalf("find failed")
	}
	result, err := entry.fn("probe", nil, entry.userData)
	if err != nil {
		t.Fatalf("callback: %v", err)
	}
	if result != "second" {
		t.Fatalf("result = %v, want second", result)
	}
	if reg.Len() != 2 {
		t.Fatalf("len = %d, earlier registration should remain", reg.Len())
	}
}

func TestRegistryUserData(t *testing.T) {
	testlog.Start(t)
	reg := NewEmbedderRegistry()
	type ctx struct{ label string }
	reg.Register("probe", func(_ string, _ map[string]string, userData any) (any, error) {
		return userData.(*ctx).label, nil
	}, &ctx{label: "opaque"})

	entry, _ := reg.Find("probe")
	result, err := entry.fn("probe", nil, entry.userData)
	if err != nil {
		t.Fatalf("callback: %v", err)
	}
	if result != "opaque" {
		t.Fatalf("result = %v", result)
	}
}

func TestRegistryRejectsEmpty(t *testing.T) {
	testlog.Start(t)
	reg := NewEmbedderRegistry()
	reg.Register("  ", func(_ string, _ map[string]string, _ any) (any, error) { return nil, nil }, nil)
	reg.Register("probe", nil, nil)
	if reg.Len() != 0 {
		t.Fatalf("len = %d, want 0", reg.Len())
	}
	if _, ok := reg.Find("probe"); ok {
		t.Fatalf("nil callback was registered")
	}
}
