package components

import "github.com/openfroyo/fwgen/pkg/engine"

// WiFiSchema describes the wifi station interface.
func WiFiSchema() *engine.ComponentSchema {
	return engine.NewSchema("wifi").
		WithDescription("wifi station interface").
		WithPriority(PriorityCommunication).
		GenerateID("wifi::WiFiComponent").
		Required("ssid", engine.StringLen(1, 32)).
		Optional("password", engine.StringLen(0, 64), "").
		Optional("power_save_mode", engine.OneOf("NONE", "LIGHT", "HIGH"), "LIGHT").
		Optional("fast_connect", engine.Bool(), false).
		DependsOn("esp32").
		AutoLoads("network")
}

// RegisterWiFi adds the wifi component.
func RegisterWiFi(reg *engine.ComponentRegistry) error {
	return reg.Register(WiFiSchema(), registerWiFi)
}

func registerWiFi(rc *engine.RegistrationContext, opts engine.Options) (string, error) {
	v := rc.NewVariable(string(instanceID(opts)), "wifi::WiFiComponent")
	rc.Call(v, "set_ssid", opts.String("ssid"))
	if pw := opts.String("password"); pw != "" {
		rc.Call(v, "set_password", pw)
	}
	rc.Call(v, "set_power_save_mode", engine.Expression("wifi::WIFI_POWER_SAVE_"+opts.String("power_save_mode")))
	rc.Call(v, "set_fast_connect", opts.Bool("fast_connect"))
	rc.RegisterComponent(v)

	rc.AddDefine("USE_WIFI")
	return string(v), nil
}
