/*
Package ports defines the driven ports (interfaces) of the Baton stage runtime.

These interfaces decouple the orchestration protocol from the external collaborators
it persists and triggers around, so the same runner works against MinIO, Redis, the
local filesystem or an in-memory double.

# Key Interfaces

  - BlobStore: bucket/object storage for artifacts.
  - Invoker: best-effort remote start of a named stage.
  - Provisioner: deploys and retires stage functions around a hand-off.
*/
package ports
