// Package triage implements Solace's automated pre-counselor triage: a
// per-conversation state machine that welcomes the student, walks a fixed
// question script, classifies risk through an LLM provider, persists the
// resulting urgency, and hands elevated results to the escalation
// dispatcher. It defines the Service (event intake, per-conversation
// serialization), Machine (phase sequencing), Classifier (prompt + provider
// + parse), ParseAssessment (fail-safe extraction), and the Scheduler used
// for paced message emission.
package triage
