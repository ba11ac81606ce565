//go:build mage

package main

import (
	"fmt"
	"os"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// Default target to run when none is specified
var Default = Build

const binary = "meaningbot"

// Build compiles the meaningbot binary
func Build() error {
	fmt.Println("Building", binary)
	// go-sqlite3 needs cgo
	env := map[string]string{"CGO_ENABLED": "1"}
	return sh.RunWith(env, "go", "build", "-o", binary, "./cmd/meaningbot")
}

// Install installs meaningbot into GOPATH/bin
func Install() error {
	mg.Deps(Test)
	return sh.RunWith(map[string]string{"CGO_ENABLED": "1"}, "go", "install", "./cmd/meaningbot")
}

// Test runs the unit tests
func Test() error {
	return sh.RunV("go", "test", "./...")
}

// Race runs the unit tests with the race detector
func Race() error {
	return sh.RunV("go", "test", "-race", "./...")
}

// Integration runs the tests that call the real translation APIs
func Integration() error {
	if os.Getenv("OPENAI_API_KEY") == "" && os.Getenv("GEMINI_API_KEY") == "" {
		fmt.Println("Neither OPENAI_API_KEY nor GEMINI_API_KEY is set, integration tests will be skipped")
	}
	return sh.RunV("go", "test", "-count=1", "./internal/fallback/...")
}

// Vet runs go vet
func Vet() error {
	return sh.RunV("go", "vet", "./...")
}

// Clean removes build artifacts
func Clean() error {
	return sh.Rm(binary)
}
