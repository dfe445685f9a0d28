/*
Package ports defines the driven ports (interfaces) for the redline engine.

These interfaces decouple the workflow controller and the merge engine from
external implementations, allowing them to work with various storage backends,
graph sources and identity providers.

# Key Interfaces

  - GraphLoader: Responsible for loading StageGraph definitions (e.g., built-in, files or Loam).
  - WorkflowStore: Persists WorkflowInstance records with an optimistic revision check.
  - DocumentStore: Persists immutable DocumentVersion snapshots with a compare-and-swap on the version number.
  - FeedbackStore: Persists FeedbackItem and Conflict records indexed by document.
  - IdentityResolver: Turns an opaque token into an Actor.
  - DistributedLocker: Provides distributed locking for handling concurrent access across replicas.
*/
package ports
