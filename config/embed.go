package config

import "embed"

//go:embed global.toml providers/*.toml
var defaultFS embed.FS
