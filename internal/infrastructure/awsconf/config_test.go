package awsconf

import (
	"context"
	"testing"
)

func TestLoadRoutesToCustomEndpoint(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")

	cfg, err := Load(context.Background(), "eu-central-1", "http://localstack:4566")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Region != "eu-central-1" {
		t.Fatalf("unexpected region %q", cfg.Region)
	}
	if cfg.EndpointResolverWithOptions == nil {
		t.Fatalf("expected custom endpoint resolver")
	}
	ep, err := cfg.EndpointResolverWithOptions.ResolveEndpoint("s3", "eu-central-1")
	if err != nil {
		t.Fatalf("resolve endpoint: %v", err)
	}
	if ep.URL != "http://localstack:4566" || !ep.HostnameImmutable {
		t.Fatalf("unexpected endpoint %+v", ep)
	}
}

func TestLoadWithoutEndpointKeepsDefaultResolution(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")

	cfg, err := Load(context.Background(), "eu-west-1", "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.EndpointResolverWithOptions != nil {
		t.Fatalf("expected no custom resolver")
	}
}
