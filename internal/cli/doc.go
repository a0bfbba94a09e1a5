// Package cli implements taskctl, the command line client of the task API.
//
// Commands are grouped by resource:
//   - task: create, show, list
//   - workers
//   - topology (--offline derives it from the compiled-in registry)
//
// Each group is built by a factory taking clientFn and outputFn, closures
// that create the Client and Output after persistent flags are parsed.
// Data goes to stdout and messages to stderr, so `taskctl task list --json | jq`
// works as expected.
package cli
