// Package common provides the logging setup shared by every binary in
// this module: a single structured logger, configured once at startup
// and threaded explicitly through every component from there on.
package common
