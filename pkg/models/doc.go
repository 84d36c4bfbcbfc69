// Package models provides the shared domain types for the agentmesh
// multi-agent conversational runtime: sessions, agents, mail, context
// messages, channel-routed output, and continuation state.
package models
