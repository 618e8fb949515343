// Package stage runs the resumable pipeline stages. A Stage is configuration
// plus an executor and a setup hook; the Engine drives it through repeated
// cycles of diffing its todo list against its done list, executing the
// outstanding identifiers in batches and merging the successes back into the
// done list.
package stage
