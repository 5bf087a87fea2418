/*
Package ports defines the driven ports (interfaces) of the parley runtime.

These interfaces decouple the dialog engine from storage backends, rate-limit
backends and program sources.

# Key Interfaces

  - DataAPI: Loads published versions and their programs (memory, directory, cached).
  - StateStore: Persists and loads session State between turns.
  - DistributedLocker: Provides distributed locking for concurrent session access.
  - RateLimiter: Counts outbound API calls per hostname across the process (or cluster).
*/
package ports
