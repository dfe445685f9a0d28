// Package graphs holds the built-in stage graphs.
package graphs

import (
	"github.com/aretw0/redline/pkg/adapters/memory"
	"github.com/aretw0/redline/pkg/domain"
	"github.com/aretw0/redline/pkg/dsl"
)

// Graph IDs.
const (
	FormalReviewID = "formal-review"
	LinearReviewID = "linear-review"
)

// Stages of the formal review graph.
const (
	Draft             domain.StageID = "draft"
	GatekeeperReview  domain.StageID = "gatekeeper_review"
	Coordination      domain.StageID = "coordination"
	ParallelReview    domain.StageID = "parallel_review"
	TechnicalReview   domain.StageID = "parallel_review.technical"
	PolicyReview      domain.StageID = "parallel_review.policy"
	SecurityReview    domain.StageID = "parallel_review.security"
	Consolidation     domain.StageID = "consolidation"
	LegalReview       domain.StageID = "legal_review"
	LeadershipSignoff domain.StageID = "leadership_signoff"
	Publication       domain.StageID = "publication"
)

// FormalReview is the full lifecycle: authoring, gatekeeper approval,
// distributed parallel review, consolidation, legal review, leadership
// sign-off and publication.
func FormalReview() *domain.StageGraph {
	b := dsl.New(FormalReviewID).
		Name("Formal review").
		Describe("Gated review with parallel technical, policy and security reviews.")

	b.Stage(Draft).Name("Draft").Order(1).Role(domain.RoleAuthor).
		Allow(domain.ActionComment).
		On(domain.ActionSubmit, GatekeeperReview)

	b.Stage(GatekeeperReview).Name("Gatekeeper review").Order(2).Role(domain.RoleGatekeeper).
		Allow(domain.ActionComment).
		On(domain.ActionApprove, Coordination).
		On(domain.ActionReject, Draft)

	b.Stage(Coordination).Name("Coordination").Order(3).Role(domain.RoleCoordinator).
		Allow(domain.ActionComment).
		Fork(domain.ActionDistribute, ParallelReview)

	b.Parallel(ParallelReview).Name("Parallel review").Order(4).
		Join(domain.ActionCompleteReview, Consolidation)

	b.Branch(ParallelReview, TechnicalReview).Name("Technical review").Order(4.1).
		Role(domain.RoleTechnicalReviewer).Allow(domain.ActionComment)
	b.Branch(ParallelReview, PolicyReview).Name("Policy review").Order(4.2).
		Role(domain.RolePolicyReviewer).Allow(domain.ActionComment)
	b.Branch(ParallelReview, SecurityReview).Name("Security review").Order(4.3).
		Role(domain.RoleSecurityReviewer).Allow(domain.ActionComment)

	b.Stage(Consolidation).Name("Consolidation").Order(5).Role(domain.RoleCoordinator).
		Allow(domain.ActionComment).
		On(domain.ActionConsolidate, LegalReview)

	b.Stage(LegalReview).Name("Legal review").Order(6).Role(domain.RoleLegal).
		Allow(domain.ActionComment).
		On(domain.ActionApprove, LeadershipSignoff).
		On(domain.ActionReject, Consolidation)

	b.Stage(LeadershipSignoff).Name("Leadership sign-off").Order(7).Role(domain.RoleLeadership).
		Allow(domain.ActionComment).
		On(domain.ActionApprove, Publication).
		On(domain.ActionReject, Consolidation)

	b.Stage(Publication).Name("Publication").Order(8).Role(domain.RolePublisher).Terminal()

	return b.Start(Draft).MustBuild()
}

// LinearReview is a single-gate lifecycle without parallel review.
func LinearReview() *domain.StageGraph {
	b := dsl.New(LinearReviewID).
		Name("Linear review").
		Describe("Draft, gatekeeper review, leadership sign-off, publication.")

	b.Stage(Draft).Name("Draft").Order(1).Role(domain.RoleAuthor).
		Allow(domain.ActionComment).
		On(domain.ActionSubmit, GatekeeperReview)

	b.Stage(GatekeeperReview).Name("Gatekeeper review").Order(2).Role(domain.RoleGatekeeper).
		Allow(domain.ActionComment).
		On(domain.ActionApprove, LeadershipSignoff).
		On(domain.ActionReject, Draft)

	b.Stage(LeadershipSignoff).Name("Leadership sign-off").Order(3).Role(domain.RoleLeadership).
		On(domain.ActionApprove, Publication).
		On(domain.ActionReject, GatekeeperReview)

	b.Stage(Publication).Name("Publication").Order(4).Role(domain.RolePublisher).Terminal()

	return b.Start(Draft).MustBuild()
}

// All returns every built-in graph.
func All() []*domain.StageGraph {
	return []*domain.StageGraph{FormalReview(), LinearReview()}
}

// Loader serves the built-in graphs.
func Loader() *memory.Loader {
	return memory.NewLoader(All()...)
}
