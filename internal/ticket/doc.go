// Package ticket extracts the structured service-request payload the agent
// embeds in its final turn, mints a local ticket identifier, and prepares
// the user-facing confirmation message. Malformed payloads are discarded
// without interrupting the conversation.
package ticket
