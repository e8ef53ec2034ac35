package distribution

import (
	"errors"
	"fmt"

	"golang.org/x/oauth2"

	"assetdistributor/internal/auth"
)

// Validate checks what every vendor adapter needs.
func (d Deps) Validate(v Vendor) error {
	switch {
	case d.Owner == nil:
		return errors.New("owner is required")
	case d.Session == nil:
		return errors.New("session is required")
	case d.Resources == nil:
		return errors.New("resource map is required")
	case d.Config.Disabled:
		return fmt.Errorf("%s is disabled", v.DisplayName())
	case d.Config.ClientID == "" || d.Config.ClientSecret == "":
		return fmt.Errorf("%s client credentials are not configured", v.DisplayName())
	}
	return nil
}

// Flow builds the owner's authorization flow for v.
func (d Deps) Flow(v Vendor, codeOpts ...oauth2.AuthCodeOption) *auth.Flow {
	return auth.NewFlow(auth.Options{
		Vendor:          string(v),
		Owner:           d.Owner.ID(),
		Config:          auth.OAuth2Config(d.Config),
		AuthCodeOptions: codeOpts,
		Credential:      d.Owner.Credential(v),
		Session:         d.Session,
		HTTPClient:      d.HTTPClient,
	})
}

// Mapper binds the resource map to v.
func (d Deps) Mapper(v Vendor) *Mapper {
	return NewMapper(d.Resources, v)
}
