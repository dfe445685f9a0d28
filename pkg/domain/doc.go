/*
Package domain contains the core domain models of the Redline review engine.

It defines the stage graph a document travels through, the workflow instance that
tracks where a document currently is, and the versioned document body that reviewer
feedback is merged into. This package is kept pure and free of external dependencies
like I/O or persistence, following Hexagonal Architecture principles.

# Key Entities

  - StageNode / Transition / StageGraph: the immutable review topology (linear stages
    plus single-level fan-out/fan-in for parallel review).
  - WorkflowInstance: the mutable position of one document in a graph, with an
    append-only history of TransitionRecords.
  - FeedbackItem / Anchor / Range: a reviewer's suggested edit and where it applies.
  - DocumentVersion: an immutable snapshot of the body produced by each accepted edit.
  - Conflict: two edits whose locations overlap, awaiting an explicit Resolution.
*/
package domain
