package components

import "github.com/openfroyo/fwgen/pkg/engine"

// MDNSSchema describes service advertisement. With openthread present the
// services are published through the Thread SRP client instead of multicast.
func MDNSSchema() *engine.ComponentSchema {
	return engine.NewSchema("mdns").
		WithDescription("service advertisement (mDNS or Thread SRP)").
		WithPriority(PriorityServices).
		GenerateID("mdns::MDNSComponent").
		Optional("disabled", engine.Bool(), false).
		Optional("services", engine.Sequence(engine.Identifier()), []interface{}{}).
		Describe("service names to advertise").
		DependsOn("network")
}

// RegisterMDNS adds the mdns component.
func RegisterMDNS(reg *engine.ComponentRegistry) error {
	return reg.Register(MDNSSchema(), registerMDNS)
}

func registerMDNS(rc *engine.RegistrationContext, opts engine.Options) (string, error) {
	if opts.Bool("disabled") {
		return "", nil
	}

	v := rc.NewVariable(string(instanceID(opts)), "mdns::MDNSComponent")
	if services, ok := opts["services"].([]interface{}); ok {
		for _, s := range services {
			rc.Call(v, "add_service", s)
		}
	}
	if ot, ok := rc.Instance("openthread"); ok {
		rc.Call(v, "set_srp_client", ot)
		rc.AddDefine("USE_MDNS_SRP")
	}
	rc.RegisterComponent(v)

	rc.AddDefine("USE_MDNS")
	return string(v), nil
}
