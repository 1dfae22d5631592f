// Package core defines the shared domain types of supportflow: executions
// and their steps, conversation sessions and turns, retrieved knowledge
// documents and identifier generation. All other packages depend on core;
// core depends on nothing but the standard library and uuid.
package core
