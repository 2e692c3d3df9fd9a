package recipient

import (
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func newTestResolver() *Resolver {
	return NewResolver(zap.NewNop())
}

func TestResolveNotificationsDisabled(t *testing.T) {
	r := newTestResolver()

	got := r.Resolve(Input{
		ActorID:   1,
		TargetIDs: []int{2, 3},
		Team: Team{
			ID:                   10,
			NotificationsEnabled: false,
			NotifyAllMembers:     true,
			MemberIDs:            []int{1, 2, 3},
		},
	})
	if len(got) != 0 {
		t.Fatalf("expected no recipients when notifications are disabled, got %v", got)
	}
}

func TestResolveNotifyAllMembersIgnoresTargets(t *testing.T) {
	r := newTestResolver()

	got := r.Resolve(Input{
		ActorID:   1,
		TargetIDs: []int{99},
		Team: Team{
			ID:                   10,
			NotificationsEnabled: true,
			NotifyAllMembers:     true,
			MemberIDs:            []int{1, 2, 3},
		},
	})
	want := []int{2, 3}
	if !equalInts(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestResolveExplicitTargetsDeduplicated(t *testing.T) {
	r := newTestResolver()

	got := r.Resolve(Input{
		ActorID:   1,
		TargetIDs: []int{2, 2, 3, 1, 3},
		Team: Team{
			ID:                   10,
			NotificationsEnabled: true,
			NotifyAllMembers:     false,
			MemberIDs:            []int{1, 2, 3, 4},
		},
	})
	want := []int{2, 3}
	if !equalInts(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestResolveEmptyMembership(t *testing.T) {
	r := newTestResolver()

	got := r.Resolve(Input{
		ActorID: 1,
		Team: Team{
			ID:                   10,
			NotificationsEnabled: true,
			NotifyAllMembers:     true,
			MemberIDs:            nil,
		},
	})
	if len(got) != 0 {
		t.Fatalf("expected no recipients for empty team, got %v", got)
	}
}

func TestResolveActorAbsentFromTargets(t *testing.T) {
	r := newTestResolver()

	got := r.Resolve(Input{
		ActorID:   7,
		TargetIDs: []int{2, 3},
		Team: Team{
			ID:                   10,
			NotificationsEnabled: true,
		},
	})
	want := []int{2, 3}
	if !equalInts(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestValidateCorrelationID(t *testing.T) {
	r := newTestResolver()

	valid := uuid.NewString()
	if got := r.ValidateCorrelationID(valid); got != valid {
		t.Fatalf("valid id should pass through, got %q", got)
	}

	replaced := r.ValidateCorrelationID("not-a-uuid")
	if replaced == "not-a-uuid" {
		t.Fatal("invalid id should be replaced")
	}
	if _, err := uuid.Parse(replaced); err != nil {
		t.Fatalf("replacement should be a valid uuid: %v", err)
	}

	if r.ValidateCorrelationID("") == "" {
		t.Fatal("empty id should be replaced")
	}
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
