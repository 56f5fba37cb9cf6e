/*
Package storage provides bbolt-backed persistence for shelfdb's sharded
document store.

The package implements a generic ordered-KV layer over one bbolt file
per shard. Every shard carries the same five sub-databases (cookies):
the primary object store, secondary index entries, the kind catalog,
the kind-id allocator table, and sequence counters. There is no fixed
entity schema — documents of any kind share the same bucket layout,
keyed by id, with kind-specific structure living one level up in
pkg/kind.

# Architecture

	┌─────────────────────── STORAGE ENGINE ───────────────────────┐
	│                                                                │
	│  ┌──────────────────────────────────────────────┐            │
	│  │                  Engine                       │            │
	│  │  - One *Shard per mounted shard id            │            │
	│  │  - File: <dir>/shard-%08x.db                  │            │
	│  │  - Format: bbolt B+tree with MVCC             │            │
	│  └──────────────────┬─────────────────────────────┘            │
	│                     │                                          │
	│  ┌──────────────────▼─────────────────────────┐              │
	│  │              Bucket Structure                 │              │
	│  │  ┌────────────────────────────┐              │              │
	│  │  │ objects    (object id)     │              │              │
	│  │  │ indexes    (index entry)   │              │              │
	│  │  │ kinds      (kind id)       │              │              │
	│  │  │ indexIds   (kind-id alloc) │              │              │
	│  │  │ seq        (counters)      │              │              │
	│  │  └────────────────────────────┘              │              │
	│  └──────────────────┬─────────────────────────┘              │
	│                     │                                          │
	│  ┌──────────────────▼─────────────────────────┐              │
	│  │         Multi-shard Transaction               │              │
	│  │  - Begin(main, extra...) stages writes in    │              │
	│  │    an in-memory overlay per shard            │              │
	│  │  - Reads merge overlay + committed bbolt     │              │
	│  │  - Commit flushes each shard's overlay in    │              │
	│  │    one db.Update; non-main shards first      │              │
	│  └──────────────────┬─────────────────────────┘              │
	│                     │                                          │
	│  ┌──────────────────▼─────────────────────────┐              │
	│  │              Sequence                         │              │
	│  │  - Monotonic counters (revisions, kind ids)  │              │
	│  │  - Batched high-water-mark persistence       │              │
	│  └────────────────────────────────────────────┘              │
	└────────────────────────────────────────────────────────────────┘

# Transactions

A Txn spans one main shard plus any number of extra shards (a put that
touches both an object's home shard and a cross-shard index, for
example). Put/Delete/Get/Iterate read and write through a per-shard
bucketOverlay so a transaction sees its own uncommitted writes without
touching bbolt until Commit. Commit applies every shard's overlay in a
single db.Update per shard; Abort discards the overlays and leaves
bbolt untouched.

# Compaction

Shard.Compact copies every bucket of a shard into a fresh bbolt file and
swaps that file in for the old one, reclaiming space from deleted pages
while the shard stays mounted.

# Example

	eng := storage.NewEngine("/var/lib/shelfdb")
	if _, err := eng.MountShard(0); err != nil {
		log.Fatal(err)
	}
	defer eng.Close()

	txn, err := eng.Begin(0)
	if err != nil {
		log.Fatal(err)
	}
	if err := txn.Put(0, storage.BucketObjects, key, value); err != nil {
		txn.Abort()
		log.Fatal(err)
	}
	if err := txn.Commit(); err != nil {
		log.Fatal(err)
	}
*/
package storage
