// Package config loads dbchores.yaml.
//
// The file holds the connection defaults, per-engine targets and
// credentials, the history location and the batch itself. It is decoded
// with yaml.v3 and validated with go-playground/validator.
package config
