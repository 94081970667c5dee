// ABOUTME: Device identity: credentials from bootstrap, XID and managed object id from integration.
// ABOUTME: Credential and binding fields are committed once and only read afterwards.

package agent

import (
	"encoding/base64"
)

// Credentials are the tenant account issued to the device by bootstrap.
type Credentials struct {
	Tenant   string
	Username string
	Password string
}

// Auth returns the base64 encoded "tenant/username:password" used for
// HTTP basic authorization.
func (c Credentials) Auth() string {
	return base64.StdEncoding.EncodeToString([]byte(c.Tenant + "/" + c.Username + ":" + c.Password))
}

// Complete reports whether every field is set.
func (c Credentials) Complete() bool {
	return c.Tenant != "" && c.Username != "" && c.Password != ""
}

// Binding is the result of a successful integration.
type Binding struct {
	XID             string
	ManagedObjectID string
}

// Identity is a snapshot of everything the agent knows about itself.
type Identity struct {
	Server          string
	DeviceID        string
	Tenant          string
	Username        string
	Password        string
	Auth            string
	XID             string
	ManagedObjectID string
}
