package recipient

import (
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Team is the configuration snapshot the resolver evaluates.
type Team struct {
	ID                   int
	NotificationsEnabled bool
	NotifyAllMembers     bool
	MemberIDs            []int
}

// Input describes one triggering action: who acted, who was explicitly
// targeted, and the team it happened in.
type Input struct {
	ActorID   int
	TargetIDs []int
	Team      Team
}

// Resolver computes the recipient set for an event.
type Resolver struct {
	logger *zap.Logger
}

func NewResolver(logger *zap.Logger) *Resolver {
	return &Resolver{logger: logger}
}

// Resolve returns the deduplicated recipient list, actor excluded.
//
// Policy:
//   - notifications disabled on the team: nobody, regardless of other flags
//   - notify-all: every team member except the actor, targets ignored
//   - otherwise: the explicit target list except the actor, set semantics
//
// First-seen order is preserved so per-recipient publish order matches
// issuance order.
func (r *Resolver) Resolve(in Input) []int {
	if !in.Team.NotificationsEnabled {
		r.logger.Debug("Team notifications disabled, resolving to nobody",
			zap.Int("team_id", in.Team.ID),
		)
		return nil
	}

	source := in.TargetIDs
	if in.Team.NotifyAllMembers {
		source = in.Team.MemberIDs
	}

	seen := make(map[int]struct{}, len(source))
	recipients := make([]int, 0, len(source))
	for _, id := range source {
		if id == in.ActorID {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		recipients = append(recipients, id)
	}
	return recipients
}

// ValidateCorrelationID returns the id unchanged when it is a well-formed
// UUID, otherwise a fresh one. Upstream callers occasionally omit or reuse
// correlation ids; a bad id would defeat the per-recipient dedup index.
func (r *Resolver) ValidateCorrelationID(id string) string {
	if _, err := uuid.Parse(id); err == nil {
		return id
	}
	fresh := uuid.NewString()
	r.logger.Warn("Invalid correlation id replaced",
		zap.String("supplied", id),
		zap.String("replacement", fresh),
	)
	return fresh
}
