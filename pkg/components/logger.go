package components

import "github.com/openfroyo/fwgen/pkg/engine"

// LoggerSchema describes the serial log output.
func LoggerSchema() *engine.ComponentSchema {
	return engine.NewSchema("logger").
		WithDescription("serial log output").
		WithPriority(PriorityLogger).
		GenerateID("logger::Logger").
		Optional("level", engine.OneOf("NONE", "ERROR", "WARN", "INFO", "DEBUG", "VERBOSE"), "DEBUG").
		Optional("baud_rate", engine.UInt32(), 115200).
		DependsOn("esp32")
}

// RegisterLogger adds the logger component.
func RegisterLogger(reg *engine.ComponentRegistry) error {
	return reg.Register(LoggerSchema(), registerLogger)
}

func registerLogger(rc *engine.RegistrationContext, opts engine.Options) (string, error) {
	v := rc.NewVariable(string(instanceID(opts)), "logger::Logger")
	rc.Call(v, "set_baud_rate", opts.Uint32("baud_rate"))
	rc.Call(v, "set_log_level", engine.Expression("ESPHOME_LOG_LEVEL_"+opts.String("level")))
	rc.RegisterComponent(v)

	rc.AddDefine("USE_LOGGER")
	return string(v), nil
}
