// Package fixtures embeds the Python helpers and templates shipped with the launcher.
package fixtures

import (
	_ "embed"
)

// SiteCustomize is installed on the server's PYTHONPATH when torch lacks the xpu namespace.
//
//go:embed pyshim/sitecustomize.py
var SiteCustomize []byte

//go:embed scripts/probe_cuda.py
var ProbeCUDA []byte

//go:embed scripts/probe_directml.py
var ProbeDirectML []byte

//go:embed scripts/probe_mps.py
var ProbeMPS []byte

//go:embed scripts/capabilities.py
var Capabilities []byte

//go:embed scripts/find_modules.py
var FindModules []byte

// Benchmark expects argv: backend index size iterations.
//
//go:embed scripts/benchmark.py
var Benchmark []byte

//go:embed config/config.yaml.template
var ConfigTemplate []byte
