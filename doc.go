// Package hako is an archetype-based Entity Component Storage core.
//
// Features:
//   - Generation-counted entity handles; stale handles never resolve.
//   - Up to 256 component types, 2000 archetypes per World.
//   - Columnar storage on chunked arenas shared per component type, grown
//     one page per column at a time.
//   - O(1) swap-remove destruction and in-place archetype migration.
//   - Sync, async and parallel queries on any task.Scheduler, with declared
//     read/write access checked at run time.
//   - A command queue for structural changes requested by query bodies,
//     applied by World.Sync on the mutating goroutine.
//
// Programmer errors (stale handles, undeclared component access, missing
// components) panic unless the module is built with the release tag, which
// compiles the checks out.
package hako
