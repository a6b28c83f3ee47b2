// Package configs provides the embedded project configuration template.
//
// The template is embedded at build time so every distribution of the
// binary can write it. `chatbot init` copies it to .chatbot.yaml in the
// project root. Keys mirror internal/config and every value shown is the
// default, so the file may be trimmed freely.
package configs

import _ "embed"

// ProjectConfigTemplate is the commented .chatbot.yaml written by init.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string
