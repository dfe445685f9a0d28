/*
Package dsl provides a Go DSL (Domain Specific Language) for programmatically constructing redline stage graphs.

It allows developers to define review topologies using a type-safe, fluent builder pattern
instead of relying on external YAML or JSON files. This is particularly useful for the
built-in graphs, unit testing, and leveraging IDE autocompletion/type-checking.

Example usage:

	b := dsl.New("two-step")

	b.Stage("draft").Order(1).Role(domain.RoleAuthor).
		On(domain.ActionSubmit, "review")

	b.Stage("review").Order(2).Role(domain.RoleGatekeeper).
		On(domain.ActionApprove, "published").
		On(domain.ActionReject, "draft")

	b.Stage("published").Order(3).Terminal()

	graph, err := b.Start("draft").Build()

Parallel review is declared with Parallel, Branch, Fork and Join:

	b.Stage("coordination").Role(domain.RoleCoordinator).
		Fork(domain.ActionDistribute, "reviews")
	b.Parallel("reviews").Join(domain.ActionCompleteReview, "consolidation")
	b.Branch("reviews", "reviews.legal").Role(domain.RoleLegal)
	b.Branch("reviews", "reviews.policy").Role(domain.RolePolicyReviewer)
*/
package dsl
