//go:build mage
// +build mage

package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/magefile/mage/mg"
)

// Default target to run when none is specified
var Default = Build

// Build compiles the petsirdrecon executable
func Build() error {
	mg.Deps(BuildCLI)
	fmt.Println("Compilation finished")
	return nil
}

// BuildCLI builds ./bin/petsirdrecon; the sqlite driver requires cgo
func BuildCLI() error {
	fmt.Println("Building petsirdrecon executable...")
	return goCmd("build", "-o", "./bin/petsirdrecon", "./cmd/petsirdrecon").Run()
}

// Test runs the package tests
func Test() error {
	fmt.Println("Running tests...")
	return goCmd("test", "./...").Run()
}

// All builds and tests
func All() {
	mg.SerialDeps(Build, Test)
}

func goCmd(args ...string) *exec.Cmd {
	cmd := exec.Command("go", args...)
	cmd.Env = append(os.Environ(),
		"CGO_ENABLED=1",
		fmt.Sprintf("CGO_LDFLAGS=%s", os.Getenv("CGO_LDFLAGS")),
		fmt.Sprintf("CGO_CFLAGS=%s", os.Getenv("CGO_CFLAGS")))
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd
}
