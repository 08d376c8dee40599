package policy

import (
	"time"
)

// GetBuiltinPolicies returns all built-in policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		threadCapableVariantPolicy(),
		threadChannelRangePolicy(),
		threadNetworkKeyPolicy(),
	}
}

// threadCapableVariantPolicy blocks openthread on chips without an 802.15.4 radio.
func threadCapableVariantPolicy() Policy {
	return Policy{
		Name:        "thread-capable-variant",
		Description: "OpenThread requires an ESP32 variant with an 802.15.4 radio (esp32c6, esp32h2)",
		Severity:    SeverityError,
		Enabled:     true,
		Builtin:     true,
		Tags:        []string{"openthread", "hardware"},
		CreatedAt:   time.Now(),
		Rego: `package fwgen.policies.thread_variant

import rego.v1

thread_variants := {"esp32c6", "esp32h2"}

deny contains violation if {
	input.plan.components.openthread
	variant := object.get(input.plan.components, ["esp32", "variant"], "esp32")
	not thread_variants[variant]
	violation := {
		"message": sprintf("openthread is not supported on variant %s, use one of esp32c6, esp32h2", [variant]),
		"severity": "error",
		"component": "openthread",
	}
}
`,
	}
}

// threadChannelRangePolicy warns about channels outside the 2.4 GHz 802.15.4 band.
func threadChannelRangePolicy() Policy {
	return Policy{
		Name:        "thread-channel-range",
		Description: "Thread channels must be within 11 to 26",
		Severity:    SeverityWarning,
		Enabled:     true,
		Builtin:     true,
		Tags:        []string{"openthread", "radio"},
		CreatedAt:   time.Now(),
		Rego: `package fwgen.policies.thread_channel

import rego.v1

deny contains violation if {
	channel := input.plan.components.openthread.channel
	not in_band(channel)
	violation := {
		"message": sprintf("openthread channel %d is outside the 802.15.4 range 11-26", [channel]),
		"severity": "warning",
		"component": "openthread",
	}
}

in_band(channel) if {
	channel >= 11
	channel <= 26
}
`,
	}
}

// threadNetworkKeyPolicy warns when the network key is not a 128-bit hex string.
func threadNetworkKeyPolicy() Policy {
	return Policy{
		Name:        "thread-network-key",
		Description: "Thread network keys should be 32 hexadecimal characters",
		Severity:    SeverityWarning,
		Enabled:     true,
		Builtin:     true,
		Tags:        []string{"openthread", "security"},
		CreatedAt:   time.Now(),
		Rego: `package fwgen.policies.thread_key

import rego.v1

deny contains violation if {
	key := input.plan.components.openthread.network_key
	not regex.match("^[0-9a-fA-F]{32}$", key)
	violation := {
		"message": sprintf("openthread network_key should be 32 hex characters, got %d characters", [count(key)]),
		"severity": "warning",
		"component": "openthread",
	}
}
`,
	}
}
