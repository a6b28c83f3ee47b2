// Package main provides the entry point for the chatbot CLI.
package main

import (
	"os"

	"github.com/NguyenDuy1910/chatbot/cmd/chatbot/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
