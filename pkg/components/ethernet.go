package components

import "github.com/openfroyo/fwgen/pkg/engine"

// EthernetSchema describes a wired ethernet PHY.
func EthernetSchema() *engine.ComponentSchema {
	return engine.NewSchema("ethernet").
		WithDescription("wired ethernet interface").
		WithPriority(PriorityCommunication).
		GenerateID("ethernet::EthernetComponent").
		Required("type", engine.OneOf("LAN8720", "RTL8201", "DP83848", "IP101", "W5500")).
		Describe("PHY chip").
		Optional("mdc_pin", engine.UInt8(), 23).
		Optional("mdio_pin", engine.UInt8(), 18).
		Optional("phy_addr", engine.IntRange(0, 31), 0).
		DependsOn("esp32").
		ConflictsWith("wifi").
		AutoLoads("network")
}

// RegisterEthernet adds the ethernet component.
func RegisterEthernet(reg *engine.ComponentRegistry) error {
	return reg.Register(EthernetSchema(), registerEthernet)
}

func registerEthernet(rc *engine.RegistrationContext, opts engine.Options) (string, error) {
	v := rc.NewVariable(string(instanceID(opts)), "ethernet::EthernetComponent")
	rc.Call(v, "set_type", engine.Expression("ethernet::ETHERNET_TYPE_"+opts.String("type")))
	rc.Call(v, "set_mdc_pin", opts.Uint8("mdc_pin"))
	rc.Call(v, "set_mdio_pin", opts.Uint8("mdio_pin"))
	rc.Call(v, "set_phy_addr", opts.Int("phy_addr"))
	rc.RegisterComponent(v)

	rc.AddDefine("USE_ETHERNET")
	if opts.String("type") == "W5500" {
		rc.SetPlatformOption("CONFIG_ETH_SPI_ETHERNET_W5500", true)
	} else {
		rc.SetPlatformOption("CONFIG_ETH_USE_ESP32_EMAC", true)
	}
	return string(v), nil
}
