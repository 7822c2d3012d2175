package directory

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"kiosk/internal/identifier"
	"kiosk/internal/logging"
	"kiosk/internal/services"
)

func openTestDirectory(t *testing.T) *SQLiteDirectory {
	t.Helper()
	dir, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "data.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = dir.Close() })
	return dir
}

func TestSQLiteLookupByNumberAndCard(t *testing.T) {
	ctx := context.Background()
	dir := openTestDirectory(t)

	if err := dir.UpsertMember(ctx, "mmaid-1", "たろう", "https://example.invalid/a.png"); err != nil {
		t.Fatal(err)
	}
	if err := dir.LinkNumber(ctx, "2210177", "mmaid-1"); err != nil {
		t.Fatal(err)
	}
	if err := dir.LinkCard(ctx, "013905fca7b7e6f5", "mmaid-1"); err != nil {
		t.Fatal(err)
	}

	for _, id := range []identifier.ID{"2210177", "013905fca7b7e6f5"} {
		profile, found, err := dir.Lookup(ctx, id)
		if err != nil {
			t.Fatalf("Lookup(%s): %v", id, err)
		}
		if !found {
			t.Fatalf("Lookup(%s): expected hit", id)
		}
		if profile.MemberID != "mmaid-1" || profile.DisplayName != "たろう" || !profile.Personalized() {
			t.Fatalf("Lookup(%s): unexpected profile %+v", id, profile)
		}
	}

	if _, found, err := dir.Lookup(ctx, "ffffffffffffffff"); err != nil || found {
		t.Fatalf("expected miss for unknown serial, found=%v err=%v", found, err)
	}
}

func TestSQLiteLookupSeesEditsImmediately(t *testing.T) {
	ctx := context.Background()
	dir := openTestDirectory(t)
	if err := dir.UpsertMember(ctx, "m1", "", ""); err != nil {
		t.Fatal(err)
	}
	if err := dir.LinkNumber(ctx, "1234567", "m1"); err != nil {
		t.Fatal(err)
	}
	profile, _, _ := dir.Lookup(ctx, "1234567")
	if profile.Personalized() {
		t.Fatal("expected no greeting name yet")
	}
	if err := dir.UpsertMember(ctx, "m1", "はなこ", ""); err != nil {
		t.Fatal(err)
	}
	profile, _, _ = dir.Lookup(ctx, "1234567")
	if profile.DisplayName != "はなこ" {
		t.Fatalf("expected updated name, got %+v", profile)
	}
}

func TestSQLiteLinkRequiresMember(t *testing.T) {
	dir := openTestDirectory(t)
	err := dir.LinkNumber(context.Background(), "1234567", "ghost")
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := dir.LinkCard(context.Background(), "1234567", "ghost"); !identifier.IsInvalid(err) {
		t.Fatalf("expected invalid serial error, got %v", err)
	}
}

func TestSQLiteListMembers(t *testing.T) {
	ctx := context.Background()
	dir := openTestDirectory(t)
	for _, id := range []string{"b", "a"} {
		if err := dir.UpsertMember(ctx, id, "name-"+id, ""); err != nil {
			t.Fatal(err)
		}
	}
	if err := dir.LinkCard(ctx, "0000000000000001", "a"); err != nil {
		t.Fatal(err)
	}
	// Relinking moves the card to the new owner.
	if err := dir.LinkCard(ctx, "0000000000000001", "b"); err != nil {
		t.Fatal(err)
	}

	members, err := dir.ListMembers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(members) != 2 || members[0].MemberID != "a" || members[1].MemberID != "b" {
		t.Fatalf("unexpected members %+v", members)
	}
	if len(members[0].Cards) != 0 || len(members[1].Cards) != 1 {
		t.Fatalf("expected card to move to b, got %+v", members)
	}

	member, found, err := dir.Member(ctx, "b")
	if err != nil || !found {
		t.Fatalf("Member(b): found=%v err=%v", found, err)
	}
	if member.Profile().DisplayName != "name-b" || member.UpdatedAt.IsZero() {
		t.Fatalf("unexpected member %+v", member)
	}
}

func TestResolveDegradesToAnonymous(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryDirectory()
	mem.Add(Profile{MemberID: "m1", DisplayName: "たろう"}, "2210177")

	if got := Resolve(ctx, mem, "2210177", logging.NewNop()); got.DisplayName != "たろう" {
		t.Fatalf("expected hit, got %+v", got)
	}

	miss := Resolve(ctx, mem, "0123456789abcdef", logging.NewNop())
	if miss != Anonymous("0123456789abcdef") || miss.Personalized() {
		t.Fatalf("expected anonymous profile, got %+v", miss)
	}

	mem.FailWith(errors.New("db gone"))
	failed := Resolve(ctx, mem, "2210177", logging.NewNop())
	if failed != Anonymous("2210177") {
		t.Fatalf("expected anonymous profile on error, got %+v", failed)
	}
}
