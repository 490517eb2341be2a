package actorutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/transistorgit/pvboiler2mqtt/internal/core/domain"
	"github.com/transistorgit/pvboiler2mqtt/internal/mqtt"
)

func TestParsedMQTTCommandToCommand(t *testing.T) {
	cmd, err := ParsedMQTTCommandToCommand(mqtt.ParsedMQTTCommand{
		DeviceId: domain.INPUT_NUMBER_ID_TARGET_TEMPERATURE,
		Command:  "number",
		Payload:  "62.5",
	})
	require.NoError(t, err)
	req, ok := cmd.(domain.SetTargetTemperatureRequest)
	require.True(t, ok)
	assert.Equal(t, 62.5, req.TargetTemperature)

	cmd, err = ParsedMQTTCommandToCommand(mqtt.ParsedMQTTCommand{
		DeviceId: domain.INPUT_NUMBER_ID_INVERTER_POWER_LIMIT,
		Command:  "number",
		Payload:  "3000",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.SetInverterPowerLimitRequest{LimitWatt: 3000}, cmd)

	cmd, err = ParsedMQTTCommandToCommand(mqtt.ParsedMQTTCommand{DeviceId: "battery_hold", Payload: "on"})
	assert.NoError(t, err)
	assert.Nil(t, cmd)
}

func TestParsePowerLimitCommand(t *testing.T) {
	tests := []struct {
		payload string
		want    uint
		wantErr bool
	}{
		{"0", 0, false},
		{"6000", 6000, false},
		{"6001", 6001, false},
		{"655350", 655350, false},
		{"655351", 0, true},
		{"-1", 0, true},
		{"NaN", 0, true},
		{"Inf", 0, true},
		{"1e30", 0, true},
		{"abc", 0, true},
	}
	for _, tt := range tests {
		cmd, err := ParsedMQTTCommandToCommand(mqtt.ParsedMQTTCommand{
			DeviceId: domain.INPUT_NUMBER_ID_INVERTER_POWER_LIMIT,
			Command:  "number",
			Payload:  tt.payload,
		})
		if tt.wantErr {
			assert.Error(t, err, "payload %q", tt.payload)
			continue
		}
		require.NoError(t, err, "payload %q", tt.payload)
		assert.Equal(t, domain.SetInverterPowerLimitRequest{LimitWatt: tt.want}, cmd)
	}
}
