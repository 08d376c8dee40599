package components

import "github.com/openfroyo/fwgen/pkg/engine"

// NetworkSchema describes the shared IP stack settings. It is usually
// auto-loaded by a network interface component.
func NetworkSchema() *engine.ComponentSchema {
	return engine.NewSchema("network").
		WithDescription("shared IP stack").
		WithPriority(PriorityNetwork).
		Optional("enable_ipv6", engine.Bool(), true).
		Describe("enable the IPv6 stack")
}

// RegisterNetwork adds the network component.
func RegisterNetwork(reg *engine.ComponentRegistry) error {
	return reg.Register(NetworkSchema(), registerNetwork)
}

func registerNetwork(rc *engine.RegistrationContext, opts engine.Options) (string, error) {
	rc.AddDefine("USE_NETWORK")
	if opts.Bool("enable_ipv6") {
		rc.AddDefine("USE_NETWORK_IPV6")
	}
	rc.SetPlatformOption("CONFIG_LWIP_IPV6", opts.Bool("enable_ipv6"))
	return "", nil
}
