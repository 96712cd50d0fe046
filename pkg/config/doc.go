/*
Package config loads Flapjack's YAML configuration file into a
Config struct, the way cmd/warren's apply.go unmarshals a resource
manifest with gopkg.in/yaml.v3 — except Config is loaded once at
process start rather than applied ad hoc.

Every option has a documented default; Load fills them in so the rest
of the pipeline never has to special-case a zero value.
*/
package config
