// Package supportflow is a customer-support agent service built around a
// bounded tool-calling loop.
//
// The agent package drives one reasoning/tool sequence per user turn,
// dispatching tools from the tool registry, gating sensitive actions behind
// the approval package's human-in-the-loop handshake, retrieving knowledge
// through the knowledge router's backend chain and carrying conversation
// history in the memory package. The orchestrator package composes those
// parts behind the chat, ingest, approve and health operations, and the
// server package exposes them over HTTP, SSE and WebSocket.
//
// Language-model access is normalized by the model package, with provider
// adapters for Anthropic and OpenAI and a protective guard adding rate
// limiting, circuit breaking and bounded retry. Tool-dispatch policy is
// evaluated with Open Policy Agent in the policy package.
//
// The cmd/supportflow command wires everything from configuration and runs
// the service.
package supportflow
