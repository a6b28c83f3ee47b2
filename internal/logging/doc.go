// Package logging configures structured JSON logging for chatbot.
//
// Interactive commands log warnings to stderr. With --debug, or whenever the
// MCP server owns stdout, records go to <data>/logs/chatbot.log through a
// size-rotated writer.
package logging
