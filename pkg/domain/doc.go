/*
Package domain contains the core domain models of the parley runtime.

It defines the dialog graph (Programs made of typed Nodes), the language model of a project
(slots and intents), inbound Requests, output Traces and the persisted session State. This
package is kept pure and free of I/O, following Hexagonal Architecture principles.

# Key Entities

  - Program: an immutable dialog graph, looked up node by node.
  - Node: a closed set of node variants (speak, interaction, api, flow, ...).
  - PrototypeModel: slots and intents used by the matcher and the entity filler.
  - Request: the classified (or raw) user event that drives a turn.
  - State: the wire shape of a session (stack of frames, global variables, storage).
*/
package domain
