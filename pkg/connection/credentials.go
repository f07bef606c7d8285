package connection

import (
	"os"
	"strings"
)

type (
	// CredentialStore looks up the credentials for an engine.
	CredentialStore interface {
		Lookup(engine string) (Credentials, bool)
	}

	// StaticCredentials is a fixed engine -> credentials table, usually from
	// the config file.
	StaticCredentials map[string]Credentials

	// EnvCredentials reads DBCHORES_<ENGINE>_USER and DBCHORES_<ENGINE>_PASSWORD.
	// An engine is known when either variable is set.
	EnvCredentials struct {
		// LookupEnv defaults to os.LookupEnv.
		LookupEnv func(string) (string, bool)
	}

	// ChainCredentials consults each store in order. For a given engine, a
	// field set by an earlier store wins over a later one.
	ChainCredentials []CredentialStore
)

func (s StaticCredentials) Lookup(engine string) (Credentials, bool) {
	c, ok := s[engine]
	return c, ok
}

func (e EnvCredentials) Lookup(engine string) (Credentials, bool) {
	lookup := e.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}

	prefix := "DBCHORES_" + strings.ToUpper(engine) + "_"
	user, hasUser := lookup(prefix + "USER")
	password, hasPassword := lookup(prefix + "PASSWORD")

	return Credentials{User: user, Password: password}, hasUser || hasPassword
}

func (c ChainCredentials) Lookup(engine string) (Credentials, bool) {
	var (
		creds Credentials
		found bool
	)

	for _, store := range c {
		next, ok := store.Lookup(engine)
		if !ok {
			continue
		}

		found = true
		if creds.User == "" {
			creds.User = next.User
		}
		if creds.Password == "" {
			creds.Password = next.Password
		}
	}

	return creds, found
}
