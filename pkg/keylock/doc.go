/*
Package keylock serializes work per key (a workflow instance, a document).

It keeps one ref-counted mutex per key in process and, when configured with a
ports.DistributedLocker, also takes a TTL-bounded lock shared across replicas.
Entries are garbage collected as soon as the last holder releases them.
*/
package keylock
