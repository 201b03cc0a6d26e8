// Package vaultstate implements the reactive state core shared by vault
// clients: typed key definitions, scoped state containers (global, per-user,
// active-user), a memoizing state provider, and lazily computed derived state.
//
// State is addressed by KeyDefinition values that bind a typed slot to a
// StateDefinition (a domain plus a storage location). Containers wrap one key
// each and expose a hot, replay-latest Observable alongside a serialized
// Update operation. The Provider memoizes containers so every caller asking
// for the same key shares one cache and one storage subscription.
//
// Persistence stays behind the Storage contract; implementations live in
// pkg/storage. Policy enforcement built on top of these primitives lives in
// pkg/policy.
package vaultstate
