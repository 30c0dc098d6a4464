package common

// Version is stamped into every log line this module emits. It is
// overridden at build time via -ldflags "-X .../common.Version=...".
var Version = "dev"

// PackageName identifies this module to its own metrics namespace.
const PackageName = "tee_keysync"
