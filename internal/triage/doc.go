// Package triage provides the business boundary for Courier's email
// assistant. It defines the Service (run lifecycle, async dispatch, triage
// branching), Router (structured three-way classification), Engine (pure LLM
// tool-loop for the response agent), Store interface (persistence), and
// domain models.
package triage
