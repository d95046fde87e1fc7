package config

import (
	"github.com/casdoor/casdoor-go-sdk/casdoorsdk"
)

// CreateClient creates a Casdoor client for verifying bearer tokens
func (c *CasdoorConfig) CreateClient() *casdoorsdk.Client {
	return casdoorsdk.NewClient(
		c.Endpoint,
		c.ClientID,
		c.ClientSecret,
		c.Certificate,
		c.Organization,
		c.Application,
	)
}
