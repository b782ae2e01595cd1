// Package discovery resolves service and broker addresses for an environment.
//
// The tables are static: every address is a pure function of the environment
// name and, for in-cluster callers, the cluster flag.
package discovery

import (
	"fmt"
	"strings"
)

// Environment deployment environment
type Environment string

const (
	// Development local or in-cluster development deployment
	Development Environment = "development"

	// Production public production deployment
	Production Environment = "production"
)

// ProdDomain public production domain
const ProdDomain = "jknl.dev"

// ParseEnvironment parses an environment name; an empty name means development
func ParseEnvironment(name string) (Environment, error) {
	switch Environment(strings.ToLower(strings.TrimSpace(name))) {
	case "", Development:
		return Development, nil
	case Production:
		return Production, nil
	default:
		return "", fmt.Errorf("unknown environment: %q", name)
	}
}

// IsValid reports whether the environment is one of the known values
func (e Environment) IsValid() bool {
	return e == Development || e == Production
}

// String implements fmt.Stringer
func (e Environment) String() string {
	return string(e)
}

// Service logical service name
type Service string

const (
	// ServiceAuth authentication portal
	ServiceAuth Service = "auth"
)

// ServiceMap service name -> base URL
type ServiceMap map[Service]string

// serviceConfig exposure flags per service
var serviceConfig = map[Service]struct{ Exposed bool }{
	ServiceAuth: {Exposed: true},
}

var (
	// LocalServiceMap addresses used on a developer machine
	LocalServiceMap = ServiceMap{
		ServiceAuth: "http://auth.127.0.0.1.nip.io",
	}

	// KubernetesInternalServiceMap addresses reachable from inside the cluster
	KubernetesInternalServiceMap = ServiceMap{
		ServiceAuth: "http://auth-service.services.svc.cluster.local",
	}

	// ProductionServiceMap public production addresses
	ProductionServiceMap = ServiceMap{
		ServiceAuth: "https://auth." + ProdDomain,
	}
)

// Services returns all known services
func Services() []Service {
	services := make([]Service, 0, len(serviceConfig))
	for s := range serviceConfig {
		services = append(services, s)
	}
	return services
}

// IsExposed reports whether the service is publicly exposed
func IsExposed(service Service) bool {
	return serviceConfig[service].Exposed
}

// BaseURL returns the base URL of a service.
// Production callers inside the cluster get the internal address.
func BaseURL(env Environment, service Service, internal bool) (string, error) {
	var m ServiceMap
	switch {
	case env == Production && internal:
		m = KubernetesInternalServiceMap
	case env == Production:
		m = ProductionServiceMap
	default:
		m = LocalServiceMap
	}

	url, ok := m[service]
	if !ok {
		return "", fmt.Errorf("unknown service: %q", service)
	}
	return url, nil
}

// TrustedOrigins returns the public base URL of every service
func TrustedOrigins(env Environment) []string {
	origins := make([]string, 0, len(serviceConfig))
	for _, s := range Services() {
		if url, err := BaseURL(env, s, false); err == nil {
			origins = append(origins, url)
		}
	}
	return origins
}
