package commands

// ConfigPath is the --config persistent flag shared by all commands.
var ConfigPath string

// Version is stamped at build time via -ldflags.
var Version = "dev"
