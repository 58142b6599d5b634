package discovery

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseResponse(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\n" +
		"CACHE-CONTROL: max-age=1800\r\n" +
		"LOCATION: http://10.0.0.5:8008/ssdp/device-desc.xml\r\n" +
		"ST: urn:dial-multiscreen-org:service:dial:1\r\n" +
		"USN: uuid:abc123::urn:dial-multiscreen-org:service:dial:1\r\n" +
		"\r\n"

	resp := parseResponse(raw)
	require.Equal(t, "http://10.0.0.5:8008/ssdp/device-desc.xml", resp.Location)
	require.Equal(t, "uuid:abc123::urn:dial-multiscreen-org:service:dial:1", resp.USN)
	require.Equal(t, "max-age=1800", resp.Headers["CACHE-CONTROL"])
}

func TestParseResponseIgnoresGarbage(t *testing.T) {
	resp := parseResponse("NOTIFY * HTTP/1.1\r\nbroken line without colon\r\n\r\n")
	require.Empty(t, resp.Location)
	require.Empty(t, resp.USN)
}

func TestExtractHost(t *testing.T) {
	require.Equal(t, "10.0.0.5", extractHost("http://10.0.0.5:8008/ssdp/device-desc.xml"))
	require.Empty(t, extractHost(""))
	require.Empty(t, extractHost("://bad"))
}

func TestParseDeviceDescription(t *testing.T) {
	payload := []byte(`<?xml version="1.0"?>
<root xmlns="urn:schemas-upnp-org:device-1-0">
  <device>
    <deviceType>urn:dial-multiscreen-org:device:dial:1</deviceType>
    <friendlyName>Living Room</friendlyName>
    <manufacturer>Google Inc.</manufacturer>
    <modelName>Eureka Dongle</modelName>
    <UDN>uuid:abc123</UDN>
  </device>
</root>`)

	desc, err := ParseDeviceDescription(payload)
	require.NoError(t, err)
	require.Equal(t, "Living Room", desc.FriendlyName)
	require.Equal(t, "Eureka Dongle", desc.ModelName)
	require.Equal(t, "abc123", desc.UDN)
	require.True(t, desc.IsCastDevice())
}

func TestParseDeviceDescriptionRejectsOtherManufacturers(t *testing.T) {
	payload := []byte(`<root><device>
  <friendlyName>Some TV</friendlyName>
  <manufacturer>LG Electronics</manufacturer>
</device></root>`)

	desc, err := ParseDeviceDescription(payload)
	require.NoError(t, err)
	require.Equal(t, "Some TV", desc.FriendlyName)
	require.False(t, desc.IsCastDevice())
}
