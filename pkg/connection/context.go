package connection

import (
	"fmt"
	"strings"
)

type (
	// Target describes where an engine is reachable. Fields that don't apply
	// to an engine are ignored by its driver.
	Target struct {
		Host        string `yaml:"host,omitempty"`
		Port        int    `yaml:"port,omitempty" validate:"gte=0,lte=65535"`
		Socket      string `yaml:"unix_socket,omitempty"`
		SSLMode     string `yaml:"ssl_mode,omitempty" validate:"omitempty,oneof=disable allow prefer require verify-ca verify-full"`
		SSLRootCert string `yaml:"ssl_rootcert,omitempty"`
		CAFile      string `yaml:"cafile,omitempty"`
		CertFile    string `yaml:"certfile,omitempty"`
		KeyFile     string `yaml:"keyfile,omitempty"`
	}

	// Credentials authenticate against an engine.
	Credentials struct {
		User     string `yaml:"user,omitempty"`
		Password string `yaml:"password,omitempty"`
	}

	// Context is everything a driver needs to open a connection for one query
	// group. It is produced by a Resolver and never shared between groups.
	Context struct {
		Engine      string
		Target      Target
		Credentials Credentials
		DB          string
		Autocommit  bool
	}
)

// Key identifies contexts that can share a connection within a group.
func (c *Context) Key() string {
	return c.Engine + "\x00" + c.DB
}

// HasDB reports whether a database was resolved. An empty DB is the
// "no database" sentinel used by statements such as CREATE DATABASE.
func (c *Context) HasDB() bool {
	return c.DB != ""
}

// Address returns the host, or the unix socket when connecting locally.
func (c *Context) Address() string {
	if c.Target.Socket != "" && isLocal(c.Target.Host) {
		return c.Target.Socket
	}

	return c.Target.Host
}

// String is safe to log; credentials are reduced to the user name.
func (c *Context) String() string {
	db := c.DB
	if db == "" {
		db = "<none>"
	}

	return fmt.Sprintf("%s://%s@%s:%d/%s autocommit=%t",
		c.Engine, c.Credentials.User, c.Address(), c.Target.Port, db, c.Autocommit)
}

func isLocal(host string) bool {
	return host == "" || strings.EqualFold(host, "localhost")
}

// merge fills unset fields of t from fallback.
func (t Target) merge(fallback Target) Target {
	if t.Host == "" {
		t.Host = fallback.Host
	}
	if t.Port == 0 {
		t.Port = fallback.Port
	}
	if t.Socket == "" {
		t.Socket = fallback.Socket
	}
	if t.SSLMode == "" {
		t.SSLMode = fallback.SSLMode
	}
	if t.SSLRootCert == "" {
		t.SSLRootCert = fallback.SSLRootCert
	}
	if t.CAFile == "" {
		t.CAFile = fallback.CAFile
	}
	if t.CertFile == "" {
		t.CertFile = fallback.CertFile
	}
	if t.KeyFile == "" {
		t.KeyFile = fallback.KeyFile
	}

	return t
}
