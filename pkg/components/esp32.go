package components

import (
	"strings"

	"github.com/openfroyo/fwgen/pkg/engine"
)

// ESP32 variants.
const (
	VariantESP32   = "esp32"
	VariantESP32S2 = "esp32s2"
	VariantESP32S3 = "esp32s3"
	VariantESP32C3 = "esp32c3"
	VariantESP32C6 = "esp32c6"
	VariantESP32H2 = "esp32h2"
)

// ESP32Schema describes the target chip and SDK settings.
func ESP32Schema() *engine.ComponentSchema {
	return engine.NewSchema("esp32").
		WithDescription("ESP32 platform: chip variant, framework and flash layout").
		WithPriority(PriorityPlatform).
		Required("board", engine.StringLen(1, 64)).
		Describe("board identifier passed to the toolchain").
		Optional("variant", engine.OneOf(VariantESP32, VariantESP32S2, VariantESP32S3,
			VariantESP32C3, VariantESP32C6, VariantESP32H2), VariantESP32).
		Describe("chip variant").
		Optional("framework", engine.OneOf("esp-idf", "arduino"), "esp-idf").
		Optional("flash_size", engine.OneOf("2MB", "4MB", "8MB", "16MB"), "4MB")
}

// RegisterESP32 adds the esp32 platform component.
func RegisterESP32(reg *engine.ComponentRegistry) error {
	return reg.Register(ESP32Schema(), registerESP32)
}

func registerESP32(rc *engine.RegistrationContext, opts engine.Options) (string, error) {
	variant := opts.String("variant")

	rc.AddDefine("USE_ESP32")
	rc.AddDefine("USE_ESP32_VARIANT_" + strings.ToUpper(variant))
	if opts.String("framework") == "esp-idf" {
		rc.AddDefine("USE_ESP_IDF")
	} else {
		rc.AddDefine("USE_ARDUINO")
	}

	rc.SetPlatformOption("CONFIG_IDF_TARGET", variant)
	rc.SetPlatformOption("CONFIG_ESPTOOLPY_FLASHSIZE_"+opts.String("flash_size"), true)
	return "", nil
}
