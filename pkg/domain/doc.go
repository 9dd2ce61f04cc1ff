/*
Package domain contains the core types of the Baton staged-pipeline protocol.

A pipeline is never materialized as a single object. It exists only as the chain of
independently invoked stages, each of which reads the artifacts its predecessors left
in shared storage, runs its work, writes its own artifacts and fires a trigger for the
next stage. This package keeps those contracts pure: no I/O, no storage, no transport.

# Key Entities

  - Stage: a named unit of work with declared input/output artifacts and a next stage.
  - ArtifactRef: a (role, kind) reference resolved to a Location by the naming table.
  - StageGraph: the centrally defined topology injected into every stage runner.
  - TriggerRequest: the ephemeral hand-off message carried to the next stage.
  - Response: the {statusCode, message} acknowledgement returned to callers.
*/
package domain
