package mqtt

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/transistorgit/pvboiler2mqtt/internal/config"
	"github.com/transistorgit/pvboiler2mqtt/internal/core/domain"
)

func TestInputNumberCommandParse(t *testing.T) {

	assert := assert.New(t)

	baseTopic := "loremTopic"
	topic := "loremTopic/number/number_name/set"
	r := numberSetExtractor(baseTopic)
	matches := r.FindAllStringSubmatch(topic, 1)

	assert.Equal(matches[0][1], "number_name", "number_id extract")
}

func TestInputNumberCommandParseFail(t *testing.T) {

	assert := assert.New(t)

	baseTopic := "loremTopic"
	topic := "loremTopic/switch/number_name/command"
	r := numberSetExtractor(baseTopic)
	matches := r.FindAllStringSubmatch(topic, 1)

	assert.Equal(len(matches), 0, "no matches")
}

func TestParseInputNumberCommand(t *testing.T) {
	r := numberSetExtractor("pvboiler")

	cmd, err := parseNumberSetCommand(r, "pvboiler/number/target_temperature/set", []byte("55"))
	require.NoError(t, err)
	assert.Equal(t, "target_temperature", cmd.DeviceId)
	assert.Equal(t, "55", cmd.Payload)

	_, err = parseNumberSetCommand(r, "pvboiler/number/target_temperature/set", []byte("hot"))
	assert.Error(t, err, "payload is not a number")

	_, err = parseNumberSetCommand(r, "other/number/target_temperature/set", []byte("55"))
	assert.Error(t, err, "foreign base topic")
}

func TestHADiscoveryMessages(t *testing.T) {
	cfg := config.Config{MQTT: config.MQTTConfig{Host: "localhost", Port: 1883, BaseTopic: "pvboiler", HADiscoveryTopic: "homeassistant"}}
	client := CreateMQTTClient(&cfg, OptsFromConfig(&cfg), nil, nil)

	heater := domain.HeaterDevice(&domain.HeaterInfo{DeviceType: "e5e1", UnitId: 33})
	sensors := domain.HeaterSensors(heater)

	connected := GenericSensorToHADiscoveryMessage(client, sensors[0])
	assert.Equal(t, "pvboiler/binary_sensor/heater_connected/state", connected.StateTopic)
	assert.Equal(t, MQTT_PAYLOAD_ON, connected.PayloadOn)
	assert.Equal(t, "pvboiler/bridge/state", connected.AvTopic)
	assert.Equal(t, "homeassistant/binary_sensor/pvb_heater_33/heater_connected/config",
		HADiscoverySensorTopic(client.DiscoveryPrefix(), sensors[0]))

	numbers := domain.HeaterInputNumbers(heater, 50)
	msg := GenericInputNumberToHADiscoveryMessage(client, numbers[0])
	assert.Equal(t, "pvboiler/number/target_temperature/set", msg.CommandTopic)
	require.NotNil(t, msg.Max)
	assert.Equal(t, 80.0, *msg.Max)

	payload, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.Contains(t, string(payload), `"unit_of_measurement":"°C"`)
	assert.Contains(t, string(payload), `"min":0`)

	sensorPayload, err := json.Marshal(connected)
	require.NoError(t, err)
	assert.NotContains(t, string(sensorPayload), `"min"`)
}
