package common

// Version is overwritten at build time via -ldflags.
var Version = "dev"

// PackageName is used as the default service tag in logs.
const PackageName = "credential-store"
