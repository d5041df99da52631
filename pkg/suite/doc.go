// Package suite runs the end-to-end scenarios against the site.
//
// A run is strictly serial. Each scenario gets its own browsing context,
// is logged in through the state synchronizer when it needs an account,
// and is bounded by a per-scenario timeout:
//
//	┌──────────────────────────────────────────────┐
//	│                   Runner                      │
//	│  - include/exclude filters                    │
//	│  - fresh context per scenario                 │
//	│  - screenshot on failure                      │
//	│  - results.json / summary.md                  │
//	└──────────────────┬───────────────────────────┘
//	                   │
//	                   ▼
//	        ┌──────────────────────┐
//	        │   Synchronizer       │
//	        │ (login, favorites    │
//	        │  cleanup)            │
//	        └──────────┬───────────┘
//	                   ▼
//	        ┌──────────────────────┐
//	        │  Scenario.Run(Env)   │
//	        └──────────────────────┘
//
// Failures are recorded per scenario and never retried. A scenario whose
// login fails stops with the synchronizer's "cannot proceed" error while
// the remaining scenarios still run.
package suite
