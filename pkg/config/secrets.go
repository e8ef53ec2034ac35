package config

import (
	"context"
	"fmt"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
)

// secretPrefix marks a value that lives in Secret Manager, e.g.
// sm://projects/my-project/secrets/youtube-client-secret/versions/latest
const secretPrefix = "sm://"

type secretAccessor interface {
	Access(ctx context.Context, name string) (string, error)
	Close() error
}

type secretManagerAccessor struct {
	client *secretmanager.Client
}

func (a *secretManagerAccessor) Access(ctx context.Context, name string) (string, error) {
	resp, err := a.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
	if err != nil {
		return "", fmt.Errorf("access %s: %w", name, err)
	}
	return strings.TrimSpace(string(resp.GetPayload().GetData())), nil
}

func (a *secretManagerAccessor) Close() error {
	return a.client.Close()
}

var newSecretAccessor = func(ctx context.Context) (secretAccessor, error) {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create secret manager client: %w", err)
	}
	return &secretManagerAccessor{client: client}, nil
}

func resolveSecrets(ctx context.Context, cfg *Config) error {
	fields := []*string{
		&cfg.EncryptionKey,
		&cfg.Cache.Redis.Password,
		&cfg.Vendors.YouTube.ClientID,
		&cfg.Vendors.YouTube.ClientSecret,
		&cfg.Vendors.Vimeo.ClientID,
		&cfg.Vendors.Vimeo.ClientSecret,
		&cfg.Vendors.Dailymotion.ClientID,
		&cfg.Vendors.Dailymotion.ClientSecret,
	}

	var accessor secretAccessor
	defer func() {
		if accessor != nil {
			_ = accessor.Close()
		}
	}()

	for _, field := range fields {
		if !strings.HasPrefix(*field, secretPrefix) {
			continue
		}

		if accessor == nil {
			var err error
			if accessor, err = newSecretAccessor(ctx); err != nil {
				return err
			}
		}

		value, err := accessor.Access(ctx, strings.TrimPrefix(*field, secretPrefix))
		if err != nil {
			return err
		}
		*field = value
	}

	return nil
}
