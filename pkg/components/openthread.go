package components

import "github.com/openfroyo/fwgen/pkg/engine"

// DefaultThreadChannel is the radio channel used when none is configured.
const DefaultThreadChannel = 10

// OpenThreadSchema describes the Thread mesh radio. The radio shares the
// RF front end with wifi and needs its own IP interface, hence the conflicts
// and the network auto-load.
func OpenThreadSchema() *engine.ComponentSchema {
	return engine.NewSchema("openthread").
		WithDescription("Thread mesh networking radio").
		WithPriority(PriorityCommunication).
		GenerateID("openthread::OpenthreadComponent").
		Required("network_key", engine.String()).
		Describe("Thread network key, 16 bytes as hex").
		Optional("channel", engine.UInt8(), DefaultThreadChannel).
		Describe("IEEE 802.15.4 channel").
		DependsOn("esp32").
		ConflictsWith("wifi", "ethernet").
		AutoLoads("network")
}

// RegisterOpenThread adds the openthread component.
func RegisterOpenThread(reg *engine.ComponentRegistry) error {
	return reg.Register(OpenThreadSchema(), registerOpenThread)
}

func registerOpenThread(rc *engine.RegistrationContext, opts engine.Options) (string, error) {
	v := rc.NewVariable(string(instanceID(opts)), "openthread::OpenthreadComponent")
	rc.Call(v, "set_network_key", opts.String("network_key"))
	rc.Call(v, "set_channel", opts.Uint8("channel"))
	rc.RegisterComponent(v)

	rc.AddDefine("USE_OPENTHREAD")
	rc.SetPlatformOption("CONFIG_OPENTHREAD_ENABLED", true)
	rc.SetPlatformOption("CONFIG_OPENTHREAD_SRP_CLIENT", true)
	return string(v), nil
}
