/*
Package redline is a document review engine: a workflow state machine that
moves documents through gated, role-assigned review stages, and a feedback
merge engine that applies reviewer edits to immutable document versions.

# Concept

A stage graph describes the review lifecycle (draft, gatekeeper review,
parallel technical/policy/security review, consolidation, legal review,
leadership sign-off, publication). A workflow instance is one document's
position in that graph plus an append-only audit trail.

Reviewers suggest edits as feedback items anchored to a text snippet. The
merge engine locates each anchor in the current version, applies it as a new
version, and records a conflict instead when two edits touch overlapping text.
Conflicts and stale anchors are outcomes, not errors.

# Usage

	eng, err := redline.New()
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	author := domain.Actor{ID: "alice", Role: domain.RoleAuthor}

	_, _ = eng.CreateDocument(ctx, "manual", "The maual is good.")
	inst, _ := eng.StartWorkflow(ctx, graphs.FormalReviewID, "manual", author)

	_, err = eng.AdvanceWorkflow(ctx, domain.AdvanceRequest{
		InstanceID: inst.ID,
		Action:     domain.ActionSubmit,
		Actor:      author,
	})

# Architecture

The engine follows a hexagonal layout. Stores, graph loaders, identity
resolvers and distributed lockers are ports (package ports) with in-memory,
Redis, file and Loam adapters. HTTP and MCP adapters expose the engine
through ports.ReviewService.
*/
package redline
