package main

// version is stamped by CI via -ldflags; left as a plain default for
// local builds the way the teacher's own version.go expects an
// externally-injected value.
var version = "0.1.0-dev"

func main() {
	Execute()
}
