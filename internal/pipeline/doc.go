// Package pipeline holds the domain types and collaborator interfaces shared by
// the stage engine, the metadata fetcher, the classifier and the worker pool.
package pipeline
