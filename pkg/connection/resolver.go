package connection

import (
	"fmt"
)

type (
	// Defaults are the ambient settings applied when neither a query group nor
	// a query item specifies a value.
	Defaults struct {
		Engine     string `yaml:"engine,omitempty"`
		DB         string `yaml:"db,omitempty"`
		Autocommit bool   `yaml:"autocommit,omitempty"`
	}

	// EngineDefaults are the built-in settings of an engine, supplied by its
	// driver.
	EngineDefaults struct {
		Target Target
		User   string

		// NoCredentials marks engines that never authenticate (e.g. sqlite).
		NoCredentials bool
	}

	// Request carries the group and item level settings for one resolution.
	// Empty strings and a nil Autocommit mean "not set".
	Request struct {
		GroupEngine     string
		GroupDB         string
		GroupAutocommit *bool
		ItemEngine      string
		ItemDB          string
	}

	// Resolver merges layered configuration into a Context. It is a pure
	// function of its fields and the request; it never opens connections.
	//
	// Precedence:
	//   - engine:      item -> group -> Defaults.Engine
	//   - db:          item -> group -> Defaults.DB -> "" (no database)
	//   - autocommit:  group -> Defaults.Autocommit
	//   - target:      Targets[engine] -> Engines[engine].Target
	//   - credentials: Credentials.Lookup(engine), user defaulting to
	//     Engines[engine].User
	Resolver struct {
		Defaults    Defaults
		Targets     map[string]Target
		Credentials CredentialStore
		Engines     map[string]EngineDefaults
	}

	// ConfigError is returned when no usable context can be resolved.
	ConfigError struct {
		Engine string
		Reason string
	}
)

func (e *ConfigError) Error() string {
	if e.Engine == "" {
		return "config error: " + e.Reason
	}

	return fmt.Sprintf("config error for engine %q: %s", e.Engine, e.Reason)
}

// Resolve produces the Context for a query.
//
// Example:
//
//	r := &connection.Resolver{
//		Defaults:    connection.Defaults{DB: "postgres"},
//		Targets:     map[string]connection.Target{"postgres": {Host: "db1"}},
//		Credentials: connection.StaticCredentials{"postgres": {User: "admin"}},
//	}
//
//	cctx, err := r.Resolve(connection.Request{GroupEngine: "postgres", GroupDB: "acme"})
func (r *Resolver) Resolve(req Request) (*Context, error) {
	engine := firstNonEmpty(req.ItemEngine, req.GroupEngine, r.Defaults.Engine)
	if engine == "" {
		return nil, &ConfigError{Reason: "no engine set on the query, its group or the defaults"}
	}

	builtin, known := r.Engines[engine]
	if r.Engines != nil && !known {
		return nil, &ConfigError{Engine: engine, Reason: "unsupported engine"}
	}

	target := r.Targets[engine].merge(builtin.Target)

	var creds Credentials
	if !builtin.NoCredentials {
		var ok bool
		if r.Credentials != nil {
			creds, ok = r.Credentials.Lookup(engine)
		}

		if !ok {
			return nil, &ConfigError{Engine: engine, Reason: "no credentials configured"}
		}

		if creds.User == "" {
			creds.User = builtin.User
		}
	}

	autocommit := r.Defaults.Autocommit
	if req.GroupAutocommit != nil {
		autocommit = *req.GroupAutocommit
	}

	return &Context{
		Engine:      engine,
		Target:      target,
		Credentials: creds,
		DB:          firstNonEmpty(req.ItemDB, req.GroupDB, r.Defaults.DB),
		Autocommit:  autocommit,
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}

	return ""
}
